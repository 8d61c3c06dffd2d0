package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/example/tablesched/internal/auth"
	"github.com/example/tablesched/internal/engine"
	"github.com/example/tablesched/internal/reservation"
	"github.com/example/tablesched/internal/slots"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}

// POST /api/v1/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	u, err := s.Users.Authenticate(r.Context(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := s.Sessions.SetSession(w, r, u); err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loginResponse{UserID: u.ID, Role: string(u.Role)})
}

// POST /api/v1/logout
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Sessions.ClearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

type slotDTO struct {
	Time            string `json:"time"`
	Available       bool   `json:"available"`
	AvailableTables int    `json:"availableTables"`
	TotalCapacity   int    `json:"totalCapacity"`
}

type availabilityResponse struct {
	Date   string    `json:"date"`
	Guests int       `json:"guests,omitempty"`
	Slots  []slotDTO `json:"slots"`
}

// GET /api/v1/availability?date=YYYY-MM-DD&guests=N
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	date, err := slots.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	guests := 0
	if g := r.URL.Query().Get("guests"); g != "" {
		if guests, err = strconv.Atoi(g); err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", "guests must be a number")
			return
		}
	}

	avail, err := s.Service.Availability(r.Context(), date, guests)
	if err != nil {
		handleError(w, err)
		return
	}
	resp := availabilityResponse{Date: date.String(), Guests: guests, Slots: make([]slotDTO, 0, len(avail))}
	for _, a := range avail {
		resp.Slots = append(resp.Slots, slotDTO{
			Time:            slots.FormatClock(a.Time),
			Available:       a.Available,
			AvailableTables: a.AvailableTables,
			TotalCapacity:   a.TotalCapacity,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

type bookRequest struct {
	CustomerName    string `json:"customerName"`
	CustomerEmail   string `json:"customerEmail"`
	CustomerPhone   string `json:"customerPhone"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Guests          int    `json:"guests"`
	SpecialRequests string `json:"specialRequests"`
	UserID          *int64 `json:"userId"`
}

type bookResponse struct {
	ID                 string `json:"id"`
	AssignedTable      int64  `json:"assignedTable"`
	ReservationEndTime string `json:"reservationEndTime"`
	DurationMinutes    int    `json:"durationMinutes"`
	GracePeriodMinutes int    `json:"gracePeriodMinutes"`
	MaxSittingMinutes  int    `json:"maxSittingMinutes"`
	Status             string `json:"status"`
}

// POST /api/v1/reservations
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	var body bookRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	start, err := s.startTime(body.Date, body.Time)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	req := reservation.BookingRequest{
		Customer: reservation.Customer{
			Name:  strings.TrimSpace(body.CustomerName),
			Email: strings.TrimSpace(body.CustomerEmail),
			Phone: strings.TrimSpace(body.CustomerPhone),
		},
		StartAt:         start,
		Guests:          body.Guests,
		SpecialRequests: body.SpecialRequests,
	}
	// customers book for themselves, staff may book on behalf of a user
	if by := auth.RequesterFromContext(r.Context()); by.Staff && body.UserID != nil {
		req.Customer.UserID = body.UserID
	} else if by.UserID != 0 {
		uid := by.UserID
		req.Customer.UserID = &uid
	}

	res, err := s.Service.Book(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, bookResponse{
		ID:                 res.ID.String(),
		AssignedTable:      *res.TableID,
		ReservationEndTime: slots.FormatClock(res.EndAt.In(s.Service.Catalog().Location)),
		DurationMinutes:    res.DurationMinutes,
		GracePeriodMinutes: res.GracePeriodMinutes,
		MaxSittingMinutes:  res.MaxSittingMinutes,
		Status:             string(res.Status),
	})
}

type reservationDTO struct {
	ID                 string    `json:"id"`
	TableID            *int64    `json:"tableId"`
	CustomerName       string    `json:"customerName"`
	CustomerEmail      string    `json:"customerEmail"`
	CustomerPhone      string    `json:"customerPhone"`
	UserID             *int64    `json:"userId,omitempty"`
	SpecialRequests    string    `json:"specialRequests,omitempty"`
	Date               string    `json:"date"`
	Time               string    `json:"time"`
	ReservationEndTime string    `json:"reservationEndTime"`
	Guests             int       `json:"guests"`
	DurationMinutes    int       `json:"durationMinutes"`
	GracePeriodMinutes int       `json:"gracePeriodMinutes"`
	MaxSittingMinutes  int       `json:"maxSittingMinutes"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toDTO(r reservation.Reservation, loc *time.Location) reservationDTO {
	return reservationDTO{
		ID:                 r.ID.String(),
		TableID:            r.TableID,
		CustomerName:       r.Customer.Name,
		CustomerEmail:      r.Customer.Email,
		CustomerPhone:      r.Customer.Phone,
		UserID:             r.Customer.UserID,
		SpecialRequests:    r.SpecialRequests,
		Date:               r.Date.String(),
		Time:               slots.FormatClock(r.StartAt.In(loc)),
		ReservationEndTime: slots.FormatClock(r.EndAt.In(loc)),
		Guests:             r.Guests,
		DurationMinutes:    r.DurationMinutes,
		GracePeriodMinutes: r.GracePeriodMinutes,
		MaxSittingMinutes:  r.MaxSittingMinutes,
		Status:             string(r.Status),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func reservationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "unknown reservation id")
		return uuid.UUID{}, false
	}
	return id, true
}

// GET /api/v1/reservations/{id}
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}
	res, err := s.Service.Get(r.Context(), id, auth.RequesterFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDTO(res, s.Service.Catalog().Location))
}

// GET /api/v1/reservations?date=YYYY-MM-DD
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	date, err := slots.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	list, err := s.Service.List(r.Context(), date, auth.RequesterFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	out := make([]reservationDTO, 0, len(list))
	for _, res := range list {
		out = append(out, toDTO(res, s.Service.Catalog().Location))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, fn func(id uuid.UUID, by reservation.Requester) (reservation.Reservation, error)) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}
	res, err := fn(id, auth.RequesterFromContext(r.Context()))
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, statusResponse{ID: res.ID.String(), Status: string(res.Status)})
}

// POST /api/v1/reservations/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
		return s.Service.Cancel(r.Context(), id, by)
	})
}

// POST /api/v1/reservations/{id}/seat
func (s *Server) handleSeat(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
		return s.Service.Seat(r.Context(), id, by)
	})
}

// POST /api/v1/reservations/{id}/complete
func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
		return s.Service.Complete(r.Context(), id, by)
	})
}

// POST /api/v1/reservations/{id}/no-show
func (s *Server) handleNoShow(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func(id uuid.UUID, by reservation.Requester) (reservation.Reservation, error) {
		return s.Service.NoShow(r.Context(), id, by)
	})
}

type updateRequest struct {
	TableID *int64  `json:"tableId"`
	Date    *string `json:"date"`
	Time    *string `json:"time"`
	Guests  *int    `json:"guests"`
	Status  *string `json:"status"`
}

// PATCH /api/v1/reservations/{id}
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := reservationID(w, r)
	if !ok {
		return
	}
	var body updateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON")
		return
	}
	by := auth.RequesterFromContext(r.Context())

	u := engine.StaffUpdate{Change: engine.Change{TableID: body.TableID, Guests: body.Guests}}
	if body.Status != nil {
		st, err := reservation.ParseStatus(*body.Status)
		if err != nil {
			handleError(w, err)
			return
		}
		u.Status = &st
	}
	if body.Date != nil {
		d, err := slots.ParseDate(*body.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		u.Date = &d
	}
	if body.Time != nil {
		c, err := slots.ParseClock(*body.Time)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		u.Clock = &c
	}

	res, err := s.Service.Update(r.Context(), id, u, by)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toDTO(res, s.Service.Catalog().Location))
}

// startTime combines a date and a wall-clock time in the restaurant location.
func (s *Server) startTime(date, clock string) (time.Time, error) {
	d, err := slots.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	c, err := slots.ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return slots.At(d, c, s.Service.Catalog().Location), nil
}
