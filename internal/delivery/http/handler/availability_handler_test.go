package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go-medical-reservation/internal/delivery/dto"
	"go-medical-reservation/internal/delivery/http/middleware"
	"go-medical-reservation/internal/usecase"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type fakeAvailabilityUsecase struct {
	got *dto.AvailabilityQuery
	err error
}

func (f *fakeAvailabilityUsecase) GetAvailability(ctx context.Context, query *dto.AvailabilityQuery) (*dto.AvailabilityResponse, error) {
	f.got = query
	if f.err != nil {
		return nil, f.err
	}
	return &dto.AvailabilityResponse{DoctorID: query.DoctorID, From: query.From, To: query.To}, nil
}

func availabilityRequest(ctx context.Context, doctorID, rawQuery string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctors/"+doctorID+"/availability?"+rawQuery, nil).WithContext(ctx)
	return mux.SetURLVars(req, map[string]string{"id": doctorID})
}

func TestAvailabilityHandler_GetAvailability(t *testing.T) {
	t.Parallel()

	doctorID := uuid.New()

	t.Run("passes the query through", func(t *testing.T) {
		fake := &fakeAvailabilityUsecase{}
		h := NewAvailabilityHandler(fake)

		rec := httptest.NewRecorder()
		h.GetAvailability(rec, availabilityRequest(context.Background(), doctorID.String(), "from=2025-01-01&to=2025-01-03&type=online"))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		if fake.got.DoctorID != doctorID || fake.got.From != "2025-01-01" || fake.got.To != "2025-01-03" || fake.got.ConsultationType != "online" {
			t.Fatalf("unexpected query %+v", fake.got)
		}
		if fake.got.ForPatient != nil {
			t.Fatalf("expected no patient for an anonymous call, got %s", fake.got.ForPatient)
		}
	})

	t.Run("caller is the default patient", func(t *testing.T) {
		fake := &fakeAvailabilityUsecase{}
		h := NewAvailabilityHandler(fake)
		userID := uuid.New()
		ctx := context.WithValue(context.Background(), middleware.UserIDKey, userID)

		rec := httptest.NewRecorder()
		h.GetAvailability(rec, availabilityRequest(ctx, doctorID.String(), ""))

		if fake.got.ForPatient == nil || *fake.got.ForPatient != userID {
			t.Fatalf("expected patient %s, got %v", userID, fake.got.ForPatient)
		}
	})

	t.Run("explicit patient wins", func(t *testing.T) {
		fake := &fakeAvailabilityUsecase{}
		h := NewAvailabilityHandler(fake)
		patientID := uuid.New()
		ctx := context.WithValue(context.Background(), middleware.UserIDKey, uuid.New())

		rec := httptest.NewRecorder()
		h.GetAvailability(rec, availabilityRequest(ctx, doctorID.String(), "forPatient="+patientID.String()))

		if fake.got.ForPatient == nil || *fake.got.ForPatient != patientID {
			t.Fatalf("expected patient %s, got %v", patientID, fake.got.ForPatient)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		tests := []struct {
			name     string
			doctorID string
			query    string
			err      error
			want     int
		}{
			{"doctor id", "nope", "", nil, http.StatusBadRequest},
			{"consultation type", doctorID.String(), "type=home", nil, http.StatusBadRequest},
			{"patient id", doctorID.String(), "forPatient=nope", nil, http.StatusBadRequest},
			{"range", doctorID.String(), "from=2025-01-05&to=2025-01-01", usecase.ErrInvalidDateRange, http.StatusBadRequest},
			{"range too long", doctorID.String(), "from=2025-01-01&to=2025-03-01", usecase.ErrDateRangeTooLong, http.StatusBadRequest},
			{"unknown doctor", uuid.New().String(), "", usecase.ErrDoctorNotFound, http.StatusNotFound},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				h := NewAvailabilityHandler(&fakeAvailabilityUsecase{err: tt.err})

				rec := httptest.NewRecorder()
				h.GetAvailability(rec, availabilityRequest(context.Background(), tt.doctorID, tt.query))

				if rec.Code != tt.want {
					t.Fatalf("expected status %d, got %d", tt.want, rec.Code)
				}
			})
		}
	})
}
