package ingest

import (
	"fmt"

	"github.com/ladiesman540/crane-platform/internal/store"
)

// Payload is one gateway report, flat as the gateways send it. The gateway
// also reports sensor_type and mode; the schema type-checks them but they are
// not stored per reading.
type Payload struct {
	Addr           string   `json:"addr"`
	Firmware       *int     `json:"firmware,omitempty"`
	BatteryPercent *int     `json:"battery_percent,omitempty"`
	Counter        *int64   `json:"counter,omitempty"`
	ODR            *int     `json:"odr,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`

	XRMSAccG        *float64 `json:"x_rms_ACC_G,omitempty"`
	XMaxAccG        *float64 `json:"x_max_ACC_G,omitempty"`
	XVelocityMMSec  *float64 `json:"x_velocity_mm_sec,omitempty"`
	XDisplacementMM *float64 `json:"x_displacement_mm,omitempty"`
	XPeakOneHz      *float64 `json:"x_peak_one_Hz,omitempty"`
	XPeakTwoHz      *float64 `json:"x_peak_two_Hz,omitempty"`
	XPeakThreeHz    *float64 `json:"x_peak_three_Hz,omitempty"`

	YRMSAccG        *float64 `json:"y_rms_ACC_G,omitempty"`
	YMaxAccG        *float64 `json:"y_max_ACC_G,omitempty"`
	YVelocityMMSec  *float64 `json:"y_velocity_mm_sec,omitempty"`
	YDisplacementMM *float64 `json:"y_displacement_mm,omitempty"`
	YPeakOneHz      *float64 `json:"y_peak_one_Hz,omitempty"`
	YPeakTwoHz      *float64 `json:"y_peak_two_Hz,omitempty"`
	YPeakThreeHz    *float64 `json:"y_peak_three_Hz,omitempty"`

	ZRMSAccG        *float64 `json:"z_rms_ACC_G,omitempty"`
	ZMaxAccG        *float64 `json:"z_max_ACC_G,omitempty"`
	ZVelocityMMSec  *float64 `json:"z_velocity_mm_sec,omitempty"`
	ZDisplacementMM *float64 `json:"z_displacement_mm,omitempty"`
	ZPeakOneHz      *float64 `json:"z_peak_one_Hz,omitempty"`
	ZPeakTwoHz      *float64 `json:"z_peak_two_Hz,omitempty"`
	ZPeakThreeHz    *float64 `json:"z_peak_three_Hz,omitempty"`

	RPM  *int `json:"rpm,omitempty"`
	RSSI *int `json:"rssi,omitempty"`

	FFT *FFT `json:"fft,omitempty"`
}

// FFT is a single-axis magnitude spectrum.
type FFT struct {
	Axis    string    `json:"axis"`
	ODR     int       `json:"odr"`
	NumBins int       `json:"num_bins"`
	Data    []float64 `json:"data"`
}

func (p *Payload) Validate() error {
	if p.Addr == "" {
		return fmt.Errorf("%w: addr is required", ErrInvalidPayload)
	}
	if p.FFT == nil {
		return nil
	}
	switch p.FFT.Axis {
	case "x", "y", "z":
	default:
		return fmt.Errorf("%w: fft.axis must be x, y or z, got %q", ErrInvalidPayload, p.FFT.Axis)
	}
	if p.FFT.NumBins != len(p.FFT.Data) {
		return fmt.Errorf("%w: fft.num_bins %d does not match %d samples", ErrInvalidPayload, p.FFT.NumBins, len(p.FFT.Data))
	}
	return nil
}

func (p *Payload) reading() *store.Reading {
	return &store.Reading{
		Counter:        p.Counter,
		Firmware:       p.Firmware,
		BatteryPercent: p.BatteryPercent,
		ODR:            p.ODR,
		Temperature:    p.Temperature,
		X: store.AxisMetrics{
			RMSAccG: p.XRMSAccG, MaxAccG: p.XMaxAccG, VelocityMMSec: p.XVelocityMMSec,
			DisplacementMM: p.XDisplacementMM, PeakOneHz: p.XPeakOneHz, PeakTwoHz: p.XPeakTwoHz, PeakThreeHz: p.XPeakThreeHz,
		},
		Y: store.AxisMetrics{
			RMSAccG: p.YRMSAccG, MaxAccG: p.YMaxAccG, VelocityMMSec: p.YVelocityMMSec,
			DisplacementMM: p.YDisplacementMM, PeakOneHz: p.YPeakOneHz, PeakTwoHz: p.YPeakTwoHz, PeakThreeHz: p.YPeakThreeHz,
		},
		Z: store.AxisMetrics{
			RMSAccG: p.ZRMSAccG, MaxAccG: p.ZMaxAccG, VelocityMMSec: p.ZVelocityMMSec,
			DisplacementMM: p.ZDisplacementMM, PeakOneHz: p.ZPeakOneHz, PeakTwoHz: p.ZPeakTwoHz, PeakThreeHz: p.ZPeakThreeHz,
		},
		RPM:  p.RPM,
		RSSI: p.RSSI,
	}
}

// ReadingEvent is pushed to real-time subscribers after a reading commits.
type ReadingEvent struct {
	Event          string   `json:"event"`
	SensorID       string   `json:"sensor_id"`
	ReadingID      int64    `json:"reading_id"`
	Temperature    *float64 `json:"temperature"`
	XVelocityMMSec *float64 `json:"x_velocity_mm_sec"`
	YVelocityMMSec *float64 `json:"y_velocity_mm_sec"`
	ZVelocityMMSec *float64 `json:"z_velocity_mm_sec"`
	BatteryPercent *int     `json:"battery_percent"`
}

const EventSensorReading = "sensor.reading"
