package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ladiesman540/crane-platform/internal/apperr"
	"github.com/ladiesman540/crane-platform/internal/spectrum"
	"github.com/ladiesman540/crane-platform/internal/store"
)

type readingDTO struct {
	ID             int64     `json:"id"`
	SensorID       uuid.UUID `json:"sensor_id"`
	Timestamp      time.Time `json:"timestamp"`
	Counter        *int64    `json:"counter"`
	BatteryPercent *int      `json:"battery_percent"`
	Temperature    *float64  `json:"temperature"`

	XRMSAccG        *float64 `json:"x_rms_ACC_G"`
	XMaxAccG        *float64 `json:"x_max_ACC_G"`
	XVelocityMMSec  *float64 `json:"x_velocity_mm_sec"`
	XDisplacementMM *float64 `json:"x_displacement_mm"`
	XPeakOneHz      *float64 `json:"x_peak_one_Hz"`
	XPeakTwoHz      *float64 `json:"x_peak_two_Hz"`
	XPeakThreeHz    *float64 `json:"x_peak_three_Hz"`

	YRMSAccG        *float64 `json:"y_rms_ACC_G"`
	YMaxAccG        *float64 `json:"y_max_ACC_G"`
	YVelocityMMSec  *float64 `json:"y_velocity_mm_sec"`
	YDisplacementMM *float64 `json:"y_displacement_mm"`
	YPeakOneHz      *float64 `json:"y_peak_one_Hz"`
	YPeakTwoHz      *float64 `json:"y_peak_two_Hz"`
	YPeakThreeHz    *float64 `json:"y_peak_three_Hz"`

	ZRMSAccG        *float64 `json:"z_rms_ACC_G"`
	ZMaxAccG        *float64 `json:"z_max_ACC_G"`
	ZVelocityMMSec  *float64 `json:"z_velocity_mm_sec"`
	ZDisplacementMM *float64 `json:"z_displacement_mm"`
	ZPeakOneHz      *float64 `json:"z_peak_one_Hz"`
	ZPeakTwoHz      *float64 `json:"z_peak_two_Hz"`
	ZPeakThreeHz    *float64 `json:"z_peak_three_Hz"`

	RPM  *int `json:"rpm"`
	RSSI *int `json:"rssi"`
}

func toReadingDTO(rd store.Reading) readingDTO {
	return readingDTO{
		ID: rd.ID, SensorID: rd.SensorID, Timestamp: rd.Timestamp, Counter: rd.Counter,
		BatteryPercent: rd.BatteryPercent, Temperature: rd.Temperature,
		XRMSAccG: rd.X.RMSAccG, XMaxAccG: rd.X.MaxAccG, XVelocityMMSec: rd.X.VelocityMMSec, XDisplacementMM: rd.X.DisplacementMM,
		XPeakOneHz: rd.X.PeakOneHz, XPeakTwoHz: rd.X.PeakTwoHz, XPeakThreeHz: rd.X.PeakThreeHz,
		YRMSAccG: rd.Y.RMSAccG, YMaxAccG: rd.Y.MaxAccG, YVelocityMMSec: rd.Y.VelocityMMSec, YDisplacementMM: rd.Y.DisplacementMM,
		YPeakOneHz: rd.Y.PeakOneHz, YPeakTwoHz: rd.Y.PeakTwoHz, YPeakThreeHz: rd.Y.PeakThreeHz,
		ZRMSAccG: rd.Z.RMSAccG, ZMaxAccG: rd.Z.MaxAccG, ZVelocityMMSec: rd.Z.VelocityMMSec, ZDisplacementMM: rd.Z.DisplacementMM,
		ZPeakOneHz: rd.Z.PeakOneHz, ZPeakTwoHz: rd.Z.PeakTwoHz, ZPeakThreeHz: rd.Z.PeakThreeHz,
		RPM: rd.RPM, RSSI: rd.RSSI,
	}
}

type spectrumDTO struct {
	ID        int64     `json:"id"`
	SensorID  uuid.UUID `json:"sensor_id"`
	Timestamp time.Time `json:"timestamp"`
	Axis      string    `json:"axis"`
	ODR       int       `json:"odr"`
	NumBins   int       `json:"num_bins"`
	Data      []float32 `json:"data"`
}

// authorizeSensor checks that the sensor belongs to the caller's tenant.
// Foreign and unknown sensors look the same to the caller.
func (s *Server) authorizeSensor(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	id, ok := identityFrom(r.Context())
	if !ok {
		apperr.WriteError(w, apperr.Unauthorized("unauthorized"))
		return uuid.Nil, false
	}
	orgID, err := uuid.Parse(id.Tenant)
	if err != nil {
		apperr.WriteError(w, apperr.Unauthorized("invalid token tenant"))
		return uuid.Nil, false
	}
	sensorID, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid sensor_id"))
		return uuid.Nil, false
	}
	if _, err := s.opts.Repo.SensorInOrg(r.Context(), sensorID, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apperr.WriteError(w, apperr.NotFound("Sensor not found"))
			return uuid.Nil, false
		}
		writeErr(w, r, err)
		return uuid.Nil, false
	}
	return sensorID, true
}

func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("sensor_id")) == "" {
		apperr.WriteError(w, apperr.BadRequest("sensor_id is required"))
		return
	}
	start, err := parseTime(q.Get("start"))
	if err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid start"))
		return
	}
	end, err := parseTime(q.Get("end"))
	if err != nil {
		apperr.WriteError(w, apperr.BadRequest("invalid end"))
		return
	}
	limit := 100
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			apperr.WriteError(w, apperr.BadRequest("limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	sensorID, ok := s.authorizeSensor(w, r, q.Get("sensor_id"))
	if !ok {
		return
	}
	rows, err := s.opts.Repo.ListReadings(r.Context(), sensorID, start, end, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	out := make([]readingDTO, 0, len(rows))
	for _, rd := range rows {
		out = append(out, toReadingDTO(rd))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := s.authorizeSensor(w, r, chi.URLParam(r, "sensor_id"))
	if !ok {
		return
	}
	rd, err := s.opts.Repo.LatestReading(r.Context(), sensorID)
	if errors.Is(err, store.ErrNotFound) {
		apperr.WriteError(w, apperr.NotFound("No readings found"))
		return
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReadingDTO(*rd))
}

func (s *Server) handleLatestSpectrum(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := s.authorizeSensor(w, r, chi.URLParam(r, "sensor_id"))
	if !ok {
		return
	}
	axis := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("axis")))
	switch axis {
	case "", "x", "y", "z":
	default:
		apperr.WriteError(w, apperr.BadRequest("axis must be x, y or z"))
		return
	}

	c, err := s.opts.Repo.LatestSpectrum(r.Context(), sensorID, axis)
	if errors.Is(err, store.ErrNotFound) {
		apperr.WriteError(w, apperr.NotFound("No spectra found"))
		return
	}
	if err != nil {
		writeErr(w, r, err)
		return
	}
	data, err := spectrum.DecodeBins(c.SpectrumData, c.NumBins)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spectrumDTO{
		ID: c.ID, SensorID: c.SensorID, Timestamp: c.Timestamp,
		Axis: c.Axis, ODR: c.ODR, NumBins: c.NumBins, Data: data,
	})
}

func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
