package cmd

import (
	"fmt"

	"github.com/marcus/rollcall/internal/engine"
	"github.com/marcus/rollcall/internal/syncconfig"
)

// openEngine builds an engine from the loaded config and stored
// credentials. recoverInFlight is set only by long-running processes.
func openEngine(recoverInFlight bool) (*engine.Engine, error) {
	creds, err := syncconfig.LoadAuth()
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	deviceID, err := syncconfig.EnsureDeviceID()
	if err != nil {
		return nil, fmt.Errorf("device id: %w", err)
	}

	opts := engine.Options{
		Config:   cfg,
		Token:    syncconfig.GetToken(),
		DeviceID: deviceID,
		Offline:  offline || cfg.ServerURL == "",
		Recover:  recoverInFlight,
	}
	if creds != nil {
		opts.TeacherID = creds.TeacherID
	}
	return engine.Open(opts)
}
