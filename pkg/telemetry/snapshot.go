// Package telemetry receives screwdriver state pushed by the tool's compute box
// and keeps the latest complete snapshot available to readers.
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultDeviceType is the deviceType value of the screwdriver in a push.
const DefaultDeviceType = 14

// Snapshot is one fully-formed screwdriver state push. It is never mutated
// after decoding.
type Snapshot struct {
	Status             int
	Busy               bool
	ShankBusy          bool
	ZSafetyActivated   bool
	ErrorCode          int
	CurrentTorqueNm    float64
	ShankPositionMm    float64
	ForceN             float64
	TorqueGradient     float64
	AchievedTorqueNm   float64
	CommandResults     int
	QCVersion          int
	ExtenderLengthMm   float64
	MaxShankPositionMm float64
	ReceivedAt         time.Time
}

// variables mirrors the "variable" map of the screwdriver device entry.
// Pointers distinguish a missing key from a zero value.
type variables struct {
	Status                *int     `json:"status"`
	ScrewdriverBusy       *bool    `json:"screwdriver_busy"`
	ShankBusy             *bool    `json:"shank_busy"`
	ZSafetyActivated      *bool    `json:"z_safety_activated"`
	ErrorCode             *int     `json:"error_code"`
	CurrentTorque         *float64 `json:"current_torque"`
	ShankPosition         *float64 `json:"shank_position"`
	Force                 *float64 `json:"force"`
	TorqueGradient        *float64 `json:"torque_gradient"`
	AchievedTorque        *float64 `json:"achieved_torque"`
	CommandResults        *int     `json:"command_results"`
	QCVersion             *int     `json:"qc_version"`
	CurrentExtenderLength *float64 `json:"current_extender_length"`
	MaximumShankPosition  *float64 `json:"maximum_shank_position"`
}

type devicePush struct {
	Devices []struct {
		DeviceType int             `json:"deviceType"`
		Variable   json.RawMessage `json:"variable"`
	} `json:"devices"`
}

var (
	// ErrNoDevice means the push carried no entry for the screwdriver.
	ErrNoDevice = errors.New("telemetry: no screwdriver device in push")
	// ErrEmptyVariables means the screwdriver entry had an empty variable map.
	ErrEmptyVariables = errors.New("telemetry: empty screwdriver variables")
)

// Decode extracts the screwdriver snapshot from one push payload. Any
// missing or mistyped field rejects the whole push.
func Decode(payload []byte, deviceType int, at time.Time) (Snapshot, error) {
	var push devicePush
	if err := json.Unmarshal(payload, &push); err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: decode push: %w", err)
	}

	for _, dev := range push.Devices {
		if dev.DeviceType != deviceType {
			continue
		}
		raw := bytes.TrimSpace(dev.Variable)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}")) {
			return Snapshot{}, ErrEmptyVariables
		}
		var v variables
		if err := json.Unmarshal(raw, &v); err != nil {
			return Snapshot{}, fmt.Errorf("telemetry: decode variables: %w", err)
		}
		return v.snapshot(at)
	}

	return Snapshot{}, ErrNoDevice
}

func (v variables) snapshot(at time.Time) (Snapshot, error) {
	var missing []string
	need := func(ok bool, key string) {
		if !ok {
			missing = append(missing, key)
		}
	}
	need(v.Status != nil, "status")
	need(v.ScrewdriverBusy != nil, "screwdriver_busy")
	need(v.ShankBusy != nil, "shank_busy")
	need(v.ZSafetyActivated != nil, "z_safety_activated")
	need(v.ErrorCode != nil, "error_code")
	need(v.CurrentTorque != nil, "current_torque")
	need(v.ShankPosition != nil, "shank_position")
	need(v.Force != nil, "force")
	need(v.TorqueGradient != nil, "torque_gradient")
	need(v.AchievedTorque != nil, "achieved_torque")
	need(v.CommandResults != nil, "command_results")
	need(v.QCVersion != nil, "qc_version")
	need(v.CurrentExtenderLength != nil, "current_extender_length")
	need(v.MaximumShankPosition != nil, "maximum_shank_position")
	if len(missing) > 0 {
		return Snapshot{}, fmt.Errorf("telemetry: incomplete variables, missing %v", missing)
	}

	return Snapshot{
		Status:             *v.Status,
		Busy:               *v.ScrewdriverBusy,
		ShankBusy:          *v.ShankBusy,
		ZSafetyActivated:   *v.ZSafetyActivated,
		ErrorCode:          *v.ErrorCode,
		CurrentTorqueNm:    *v.CurrentTorque,
		ShankPositionMm:    *v.ShankPosition,
		ForceN:             *v.Force,
		TorqueGradient:     *v.TorqueGradient,
		AchievedTorqueNm:   *v.AchievedTorque,
		CommandResults:     *v.CommandResults,
		QCVersion:          *v.QCVersion,
		ExtenderLengthMm:   *v.CurrentExtenderLength,
		MaxShankPositionMm: *v.MaximumShankPosition,
		ReceivedAt:         at,
	}, nil
}
