package instagram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
)

// DeviceIDs identify this client to Instagram. They are generated once and
// must stay stable across logins, so they travel with the Settings.
type DeviceIDs struct {
	PhoneID         string `json:"phone_id"`
	UUID            string `json:"uuid"`
	ClientSessionID string `json:"client_session_id"`
	DeviceID        string `json:"device_id"`
}

func newDeviceIDs() DeviceIDs {
	return DeviceIDs{
		PhoneID:         uuid.NewString(),
		UUID:            uuid.NewString(),
		ClientSessionID: uuid.NewString(),
		DeviceID:        uuid.NewString(),
	}
}

func (d DeviceIDs) validate() error {
	for name, v := range map[string]string{
		"phone_id":          d.PhoneID,
		"uuid":              d.UUID,
		"client_session_id": d.ClientSessionID,
		"device_id":         d.DeviceID,
	} {
		if _, err := uuid.Parse(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Settings is the serialisable authentication state of a Scraper. Applying
// the Settings of a logged-in Scraper to a fresh one restores its session.
type Settings struct {
	UUIDs     DeviceIDs         `json:"uuids"`
	Cookies   map[string]string `json:"cookies"`
	UserAgent string            `json:"user_agent"`
	UserID    string            `json:"user_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	LastLogin int64             `json:"last_login,omitempty"`
}

// Settings snapshots the current authentication state.
func (s *Scraper) Settings() Settings {
	cookies := make(map[string]string)
	for _, c := range s.GetCookies() {
		cookies[c.Name] = c.Value
	}

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	st := Settings{
		UUIDs:     s.uuids,
		Cookies:   cookies,
		UserAgent: s.userAgent,
		UserID:    s.userID,
		Username:  s.username,
	}
	if !s.lastLogin.IsZero() {
		st.LastLogin = s.lastLogin.Unix()
	}
	return st
}

// ApplySettings restores authentication state produced by Settings. Empty
// device ids keep the ones the Scraper already has.
func (s *Scraper) ApplySettings(st Settings) error {
	if st.UUIDs != (DeviceIDs{}) {
		if err := st.UUIDs.validate(); err != nil {
			return fmt.Errorf("apply settings: %w", err)
		}
	}

	names := make([]string, 0, len(st.Cookies))
	for name := range st.Cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: st.Cookies[name], Path: "/"})
	}
	s.SetCookies(cookies)
	loggedIn := s.hasSessionCookie()

	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if st.UUIDs != (DeviceIDs{}) {
		s.uuids = st.UUIDs
	}
	if st.UserAgent != "" {
		s.userAgent = st.UserAgent
	}
	if st.UserID != "" {
		s.userID = st.UserID
	}
	s.username = st.Username
	if st.LastLogin > 0 {
		s.lastLogin = time.Unix(st.LastLogin, 0)
	}
	s.isLogged = loggedIn
	return nil
}

func (s *Scraper) hasSessionCookie() bool {
	return s.cookieValue("sessionid") != ""
}

// SaveSettings writes the current Settings to a JSON file.
func (s *Scraper) SaveSettings(path string) error {
	data, err := json.MarshalIndent(s.Settings(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadSettings reads Settings from a JSON file and applies them.
func (s *Scraper) LoadSettings(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	var st Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}
	return s.ApplySettings(st)
}
