package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/concert-booking/internal/booking"
	"github.com/robertarktes/concert-booking/internal/config"
	"github.com/robertarktes/concert-booking/internal/domain"
	"github.com/robertarktes/concert-booking/internal/idempotency"
	"github.com/robertarktes/concert-booking/internal/subscription"
	"golang.org/x/sync/errgroup"
)

const AuthCookie = "auth"

type Catalog interface {
	FindConcert(ctx context.Context, id int64) (domain.Concert, error)
	ListConcerts(ctx context.Context) ([]domain.Concert, error)
	FindPerformer(ctx context.Context, id int64) (domain.Performer, error)
	ListPerformers(ctx context.Context) ([]domain.Performer, error)
}

type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, domain.User, error)
	Resolve(ctx context.Context, token string) (*domain.User, error)
}

// Pinger is a dependency checked by /v1/readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	cfg      *config.Config
	catalog  Catalog
	bookings *booking.Coordinator
	subs     *subscription.Service
	auth     Authenticator
	idemp    *idempotency.Idempotency
	checks   map[string]Pinger
}

// NewHandlers wires the API. idemp may be nil, which disables response replay.
func NewHandlers(cfg *config.Config, catalog Catalog, bookings *booking.Coordinator, subs *subscription.Service, auth Authenticator, idemp *idempotency.Idempotency, checks map[string]Pinger) *Handlers {
	return &Handlers{
		cfg:      cfg,
		catalog:  catalog,
		bookings: bookings,
		subs:     subs,
		auth:     auth,
		idemp:    idemp,
		checks:   checks,
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			return err
		}
		return errors.Wrap(domain.ErrInvalidRequest, err.Error())
	}
	return nil
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsDTO
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	token, u, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	loggerFrom(r.Context()).WithField("user", u.Username).Info("user logged in")
	writeJSON(w, http.StatusOK, userDTO{ID: u.ID, Username: u.Username})
}

func (h *Handlers) ListConcerts(w http.ResponseWriter, r *http.Request) {
	concerts, err := h.catalog.ListConcerts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]concertDTO, len(concerts))
	for i, c := range concerts {
		out[i] = toConcertDTO(c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) ListConcertSummaries(w http.ResponseWriter, r *http.Request) {
	concerts, err := h.catalog.ListConcerts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]concertSummaryDTO, len(concerts))
	for i, c := range concerts {
		out[i] = concertSummaryDTO{ID: c.ID, Title: c.Title, ImageName: c.ImageName}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetConcert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, errors.Wrap(domain.ErrInvalidRequest, "invalid concert id"))
		return
	}
	c, err := h.catalog.FindConcert(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toConcertDTO(c))
}

func (h *Handlers) ListPerformers(w http.ResponseWriter, r *http.Request) {
	performers, err := h.catalog.ListPerformers(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]performerDTO, len(performers))
	for i, p := range performers {
		out[i] = toPerformerDTO(p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetPerformer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, errors.Wrap(domain.ErrInvalidRequest, "invalid performer id"))
		return
	}
	p, err := h.catalog.FindPerformer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPerformerDTO(p))
}

func (h *Handlers) GetSeats(w http.ResponseWriter, r *http.Request) {
	date, err := ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	status, err := domain.ParseSeatStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	seats, err := h.bookings.Seats(r.Context(), date, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeatDTOs(seats))
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if caller == nil {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}

	key := r.Header.Get(IdempotencyHeader)
	if key != "" && h.idemp != nil {
		key = strconv.FormatInt(caller.ID, 10) + ":" + key
		existing, err := h.idemp.Get(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if existing != nil {
			replay(w, existing)
			return
		}
		ok, release, err := h.idemp.Begin(r.Context(), key)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusConflict, errorBody{Error: "request with this Idempotency-Key in progress"})
			return
		}
		defer release()
		// The holder we raced may have stored its response and released the lock.
		if existing, err := h.idemp.Get(r.Context(), key); err != nil {
			writeError(w, r, err)
			return
		} else if existing != nil {
			replay(w, existing)
			return
		}
	}

	var req bookingRequestDTO
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.bookings.AttemptBooking(r.Context(), caller, booking.Request{
		ConcertID:  req.ConcertID,
		Date:       req.Date.Time,
		SeatLabels: req.SeatLabels,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	location := "/concert-service/bookings/" + b.ID.String()
	var body bytes.Buffer
	_ = json.NewEncoder(&body).Encode(toBookingDTO(b))

	w.Header().Set("Location", location)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(body.Bytes())

	if key != "" && h.idemp != nil {
		resp := idempotency.Response{Status: http.StatusCreated, Location: location, Result: body.Bytes()}
		if err := h.idemp.Set(context.WithoutCancel(r.Context()), key, resp); err != nil {
			loggerFrom(r.Context()).WithError(err).Warn("store idempotent response failed")
		}
	}
}

func replay(w http.ResponseWriter, resp *idempotency.Response) {
	if resp.Location != "" {
		w.Header().Set("Location", resp.Location)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Result)
}

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.bookings.Bookings(r.Context(), callerFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]bookingDTO, len(bookings))
	for i, b := range bookings {
		out[i] = toBookingDTO(b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if caller == nil {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, errors.Wrap(domain.ErrNotFound, "booking"))
		return
	}
	b, err := h.bookings.Booking(r.Context(), caller, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingDTO(b))
}

// Subscribe holds the request open until the threshold is crossed, the wait times out
// (204) or the client goes away.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if caller == nil {
		writeError(w, r, domain.ErrUnauthenticated)
		return
	}
	var req subscriptionDTO
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := h.subs.Subscribe(r.Context(), caller, req.ConcertID, req.Date.Time, req.PercentageBooked)
	if errors.Is(err, subscription.ErrClosed) {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "server shutting down"})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	n, err := h.subs.Await(r.Context(), sub)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, notificationDTO{NumSeatsRemaining: n.RemainingSeats})
	case errors.Is(err, subscription.ErrStillBelowThreshold):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, subscription.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "server shutting down"})
	default:
		loggerFrom(r.Context()).WithField("subscription_id", sub.ID.String()).Debug("subscriber went away")
	}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for name, p := range h.checks {
		g.Go(func() error {
			return errors.Wrapf(p.Ping(gctx), "%s", name)
		})
	}
	if err := g.Wait(); err != nil {
		loggerFrom(r.Context()).WithError(err).Warn("not ready")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}
