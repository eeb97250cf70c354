// internal/dispatcher/poll.go
package dispatcher

import (
	"time"

	"github.com/tamzrod/uarm-bridge/internal/device"
	"github.com/tamzrod/uarm-bridge/internal/telemetry"
)

// Field names used in FieldError and logs.
const (
	FieldPosition    = "position"
	FieldJointAngles = "joint_angles"
	FieldAnalog      = "analog"
	FieldDigital     = "digital"
)

// PollOnce performs exactly one read cycle over the enabled fields,
// in the order position, joint angles, analog pins, digital pins.
// A failed field is omitted. A link failure aborts the cycle and is returned.
func (d *Dispatcher) PollOnce() (telemetry.Result, error) {
	d.polls.Add(1)
	res := telemetry.Result{Kind: telemetry.KindReading, At: time.Now()}

	if d.polling.Position() {
		pos, err := d.adapter.Position()
		if linkErr := d.fieldFailed(FieldPosition, err); linkErr != nil {
			return res, linkErr
		}
		if err == nil {
			res.Position = &pos
		}
	}

	if d.polling.JointAngles() {
		ja, err := d.adapter.JointAngles()
		if linkErr := d.fieldFailed(FieldJointAngles, err); linkErr != nil {
			return res, linkErr
		}
		if err == nil {
			res.Joints = &ja
		}
	}

	// pin categories are all-or-nothing: a partial list would shift positions
	if pins := d.polling.AnalogPins(); len(pins) > 0 {
		vals := make([]float64, 0, len(pins))
		var err error
		for _, pin := range pins {
			var v float64
			if v, err = d.adapter.Analog(pin); err != nil {
				break
			}
			vals = append(vals, telemetry.RoundAnalog(v))
		}
		if linkErr := d.fieldFailed(FieldAnalog, err); linkErr != nil {
			return res, linkErr
		}
		if err == nil {
			res.Analog = vals
		}
	}

	if pins := d.polling.DigitalPins(); len(pins) > 0 {
		vals := make([]int, 0, len(pins))
		var err error
		for _, pin := range pins {
			var v int
			if v, err = d.adapter.Digital(pin); err != nil {
				break
			}
			vals = append(vals, v)
		}
		if linkErr := d.fieldFailed(FieldDigital, err); linkErr != nil {
			return res, linkErr
		}
		if err == nil {
			res.Digital = vals
		}
	}

	return res, nil
}

// fieldFailed logs a field read error. It returns err only when the link is down.
func (d *Dispatcher) fieldFailed(field string, err error) error {
	if err == nil {
		return nil
	}
	if device.IsLinkDown(err) {
		return err
	}
	d.fieldErrors.Add(1)
	d.log.Warn("telemetry field read failed", "field", field, "err", &FieldError{Field: field, Err: err})
	return nil
}
