package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/example/seat-scheduler/internal/captcha"
)

const userAgent = "Mozilla/5.0"

// maxBodyBytes caps how much of a portal response we will buffer. The real
// pages are a few hundred KB at most.
const maxBodyBytes = 8 << 20

// Credentials identify the account on the university SSO and the library
// membership it books under.
type Credentials struct {
	Username      string
	Password      string
	LibraryNumber string
}

// Options configure a Session. BaseURL, Credentials and Solver are required;
// the rest fall back to the defaults noted per field.
type Options struct {
	BaseURL           string
	Credentials       Credentials
	Solver            captcha.Solver
	Timeout           time.Duration // HTTP timeout, default 20s
	MaxCaptchaRetries int           // default 5
	GroupRoomKeyword  string        // section keyword marking group rooms, default "Arbeitskabine"
	Logger            zerolog.Logger
}

// Session drives one authenticated pass through the reservation portal. It
// is not safe for concurrent use; the orchestrator gives each run its own.
type Session struct {
	hc             *http.Client
	base           *url.URL
	creds          Credentials
	solver         captcha.Solver
	captchaRetries int
	groupKeyword   string
	log            zerolog.Logger
	state          State
}

// NewSession builds a Session with a fresh cookie jar. Cookies carry the
// whole login, so jarless clients cannot get past the first page.
func NewSession(opts Options) (*Session, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("portal: base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("portal: parse base URL: %w", err)
	}
	if opts.Solver == nil {
		return nil, fmt.Errorf("portal: captcha solver is required")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("portal: cookie jar: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	retries := opts.MaxCaptchaRetries
	if retries <= 0 {
		retries = 5
	}
	keyword := opts.GroupRoomKeyword
	if keyword == "" {
		keyword = "Arbeitskabine"
	}
	return &Session{
		hc:             &http.Client{Jar: jar, Timeout: timeout},
		base:           base,
		creds:          opts.Credentials,
		solver:         opts.Solver,
		captchaRetries: retries,
		groupKeyword:   keyword,
		log:            opts.Logger,
		state:          StateAnonymous,
	}, nil
}

// State reports how far through the flow this session has advanced.
func (s *Session) State() State { return s.state }

func (s *Session) advance(to State) {
	s.log.Debug().Stringer("from", s.state).Stringer("to", to).Msg("portal state")
	s.state = to
}

// resolve joins ref against the portal base URL, so handlers can follow the
// relative hrefs the portal emits.
func (s *Session) resolve(ref string) (string, error) {
	if ref == "" {
		return s.base.String(), nil
	}
	u, err := s.base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("portal: resolve %q: %w", ref, err)
	}
	return u.String(), nil
}

func (s *Session) get(ctx context.Context, ref string) (string, error) {
	target, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("portal: build request: %w", err)
	}
	return s.do(req)
}

func (s *Session) postForm(ctx context.Context, ref string, form url.Values) (string, error) {
	target, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("portal: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func (s *Session) do(req *http.Request) (string, error) {
	req.Header.Set("User-Agent", userAgent)
	resp, err := s.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("portal: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("portal: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("portal: %s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return string(body), nil
}

// expired converts a portal page that has fallen back to the login form into
// a session-expiry error, so the orchestrator can re-authenticate.
func (s *Session) expired(stage, body string) error {
	if !isAnonymous(body) {
		return nil
	}
	s.advance(StateAnonymous)
	return errf(KindSessionExpired, "session expired during %s, portal is asking for login again", stage)
}
