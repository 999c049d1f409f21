package app

import (
	"encoding/json"
	"os"
	"path/filepath"

	"fastodo/internal/api"
)

const sessionFile = "session"

func (a *App) sessionPath() string {
	return filepath.Join(a.Workspace, ".fastodo", sessionFile)
}

// LoadSession reads the stored session. A missing file yields (nil, nil).
func (a *App) LoadSession() (*api.Session, error) {
	data, err := os.ReadFile(a.sessionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var session api.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveSession persists the session and points the client at its token.
func (a *App) SaveSession(session api.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.sessionPath(), data, 0o600); err != nil {
		return err
	}
	a.Client.Token = session.AccessToken
	return nil
}

// ClearSession signs out locally.
func (a *App) ClearSession() error {
	a.Client.Token = ""
	err := os.Remove(a.sessionPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
