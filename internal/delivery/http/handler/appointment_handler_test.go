package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/usecase"
	"go-medical-reservation/pkg/response"
	"go-medical-reservation/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// fakeReservationUsecase answers the handler calls under test; anything
// else panics through the nil embedded interface
type fakeReservationUsecase struct {
	usecase.ReservationUsecase

	blockFn   func(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error)
	confirmFn func(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error)
	releaseFn func(ctx context.Context, holdID uuid.UUID) error
}

func (f *fakeReservationUsecase) BlockSlot(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error) {
	return f.blockFn(ctx, req)
}

func (f *fakeReservationUsecase) ConfirmBooking(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error) {
	return f.confirmFn(ctx, req)
}

func (f *fakeReservationUsecase) ReleaseSlot(ctx context.Context, holdID uuid.UUID) error {
	return f.releaseFn(ctx, holdID)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("expected a JSON body, got %v", err)
	}
	return resp
}

func TestAppointmentHandler_BlockSlot(t *testing.T) {
	t.Parallel()

	doctorID := uuid.New()
	validBody := `{"doctor_id":"` + doctorID.String() + `","date":"2025-01-02","time":"09:30"}`

	t.Run("created", func(t *testing.T) {
		var got *dto.BlockSlotRequest
		h := NewAppointmentHandler(&fakeReservationUsecase{
			blockFn: func(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error) {
				got = req
				return &dto.HoldResponse{ID: uuid.New(), DoctorID: req.DoctorID, Date: req.Date, Time: req.Time, ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
			},
		}, validator.NewValidator())

		rec := httptest.NewRecorder()
		h.BlockSlot(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments/block", strings.NewReader(validBody)))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rec.Code)
		}
		if got == nil || got.DoctorID != doctorID || got.Time != "09:30" {
			t.Fatalf("expected the request to reach the usecase, got %+v", got)
		}
		if resp := decodeResponse(t, rec); !resp.Success {
			t.Fatalf("expected success, got %+v", resp)
		}
	})

	t.Run("validation", func(t *testing.T) {
		called := false
		h := NewAppointmentHandler(&fakeReservationUsecase{
			blockFn: func(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error) {
				called = true
				return nil, nil
			},
		}, validator.NewValidator())

		bodies := map[string]string{
			"bad json":    `{"doctor_id":`,
			"bad time":    `{"doctor_id":"` + doctorID.String() + `","date":"2025-01-02","time":"9:30"}`,
			"bad date":    `{"doctor_id":"` + doctorID.String() + `","date":"2025/01/02","time":"09:30"}`,
			"missing all": `{}`,
		}
		for name, body := range bodies {
			t.Run(name, func(t *testing.T) {
				rec := httptest.NewRecorder()
				h.BlockSlot(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments/block", strings.NewReader(body)))
				if rec.Code != http.StatusBadRequest {
					t.Fatalf("expected status 400, got %d", rec.Code)
				}
			})
		}
		if called {
			t.Fatalf("expected invalid requests to stop at the handler")
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		tests := []struct {
			err        error
			wantStatus int
		}{
			{usecase.ErrUnauthenticated, http.StatusUnauthorized},
			{usecase.ErrSlotUnavailable, http.StatusConflict},
			{usecase.ErrHoldExpired, http.StatusGone},
			{usecase.ErrForbidden, http.StatusForbidden},
			{usecase.ErrDoctorNotFound, http.StatusNotFound},
			{usecase.ErrSlotPast, http.StatusBadRequest},
			{usecase.ErrInvalidSlot, http.StatusBadRequest},
			{usecase.ErrSlotNotOffered, http.StatusUnprocessableEntity},
			{usecase.ErrSlotBusy, http.StatusServiceUnavailable},
			{errors.New("redis down"), http.StatusInternalServerError},
		}

		for _, tt := range tests {
			t.Run(tt.err.Error(), func(t *testing.T) {
				h := NewAppointmentHandler(&fakeReservationUsecase{
					blockFn: func(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error) {
						return nil, tt.err
					},
				}, validator.NewValidator())

				rec := httptest.NewRecorder()
				h.BlockSlot(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments/block", strings.NewReader(validBody)))

				if rec.Code != tt.wantStatus {
					t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
				}
				if resp := decodeResponse(t, rec); resp.Success {
					t.Fatalf("expected failure, got %+v", resp)
				}
			})
		}
	})

	t.Run("busy slot asks to retry", func(t *testing.T) {
		h := NewAppointmentHandler(&fakeReservationUsecase{
			blockFn: func(ctx context.Context, req *dto.BlockSlotRequest) (*dto.HoldResponse, error) {
				return nil, usecase.ErrSlotBusy
			},
		}, validator.NewValidator())

		rec := httptest.NewRecorder()
		h.BlockSlot(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments/block", strings.NewReader(validBody)))

		if got := rec.Header().Get("Retry-After"); got != "1" {
			t.Fatalf("expected Retry-After 1, got %q", got)
		}
	})
}

func TestAppointmentHandler_ConfirmBooking(t *testing.T) {
	t.Parallel()

	holdID := uuid.New()

	t.Run("by hold id", func(t *testing.T) {
		h := NewAppointmentHandler(&fakeReservationUsecase{
			confirmFn: func(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error) {
				if req.HoldID == nil || *req.HoldID != holdID {
					t.Errorf("expected hold id %s, got %v", holdID, req.HoldID)
				}
				return &dto.BookingResponse{ID: uuid.New(), HoldID: req.HoldID, Status: "confirmed"}, nil
			},
		}, validator.NewValidator())

		rec := httptest.NewRecorder()
		body := `{"hold_id":"` + holdID.String() + `"}`
		h.ConfirmBooking(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body)))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rec.Code)
		}
	})

	t.Run("needs a hold id or a doctor", func(t *testing.T) {
		h := NewAppointmentHandler(&fakeReservationUsecase{}, validator.NewValidator())

		rec := httptest.NewRecorder()
		h.ConfirmBooking(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{"notes":"hi"}`)))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("expired and consumed holds", func(t *testing.T) {
		tests := map[error]int{
			usecase.ErrHoldExpired:     http.StatusGone,
			usecase.ErrHoldNotFound:    http.StatusNotFound,
			usecase.ErrSlotUnavailable: http.StatusConflict,
		}
		for err, want := range tests {
			h := NewAppointmentHandler(&fakeReservationUsecase{
				confirmFn: func(ctx context.Context, req *dto.ConfirmBookingRequest) (*dto.BookingResponse, error) {
					return nil, err
				},
			}, validator.NewValidator())

			rec := httptest.NewRecorder()
			body := `{"hold_id":"` + holdID.String() + `"}`
			h.ConfirmBooking(rec, httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body)))

			if rec.Code != want {
				t.Fatalf("%v: expected status %d, got %d", err, want, rec.Code)
			}
		}
	})
}

func TestAppointmentHandler_ReleaseHold(t *testing.T) {
	t.Parallel()

	t.Run("released", func(t *testing.T) {
		holdID := uuid.New()
		var got uuid.UUID
		h := NewAppointmentHandler(&fakeReservationUsecase{
			releaseFn: func(ctx context.Context, id uuid.UUID) error {
				got = id
				return nil
			},
		}, validator.NewValidator())

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/appointments/holds/"+holdID.String(), nil)
		req = mux.SetURLVars(req, map[string]string{"id": holdID.String()})
		rec := httptest.NewRecorder()
		h.ReleaseHold(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if got != holdID {
			t.Fatalf("expected hold %s, got %s", holdID, got)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		h := NewAppointmentHandler(&fakeReservationUsecase{}, validator.NewValidator())

		req := httptest.NewRequest(http.MethodDelete, "/api/v1/appointments/holds/abc", nil)
		req = mux.SetURLVars(req, map[string]string{"id": "abc"})
		rec := httptest.NewRecorder()
		h.ReleaseHold(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("someone else's hold", func(t *testing.T) {
		h := NewAppointmentHandler(&fakeReservationUsecase{
			releaseFn: func(ctx context.Context, id uuid.UUID) error { return usecase.ErrForbidden },
		}, validator.NewValidator())

		id := uuid.New().String()
		req := mux.SetURLVars(httptest.NewRequest(http.MethodDelete, "/api/v1/appointments/holds/"+id, nil), map[string]string{"id": id})
		rec := httptest.NewRecorder()
		h.ReleaseHold(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", rec.Code)
		}
	})
}
