package portal

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/seat-scheduler/internal/metrics"
)

// Login posts the SSO credentials and verifies the logged-in banner. It
// returns the post-login page so the registration loop can start from it.
func (s *Session) Login(ctx context.Context) (string, error) {
	// First GET seeds the session cookie the login form expects.
	if _, err := s.get(ctx, ""); err != nil {
		return "", err
	}
	form := url.Values{
		"httpd_username": {s.creds.Username},
		"httpd_password": {s.creds.Password},
		"httpd_dummy":    {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}
	body, err := s.postForm(ctx, "", form)
	if err != nil {
		return "", err
	}
	if !strings.Contains(body, markerLoggedIn) {
		return "", errf(KindAuthFailed, "login failed for %s, check credentials", s.creds.Username)
	}
	s.log.Debug().Str("user", s.creds.Username).Msg("logged in")
	s.advance(Classify(body))
	return body, nil
}

// ConfirmRegistration works through the captcha-gated registration form
// until the portal accepts the session or the retry budget runs out. Every
// loop iteration counts against the budget, including re-fetches after an
// unreadable captcha.
func (s *Session) ConfirmRegistration(ctx context.Context, body string) error {
	for attempt := 1; attempt <= s.captchaRetries; attempt++ {
		img, found, err := captchaImage(body)
		if err != nil {
			return err
		}
		if !found {
			// No captcha can also mean the account is already registered.
			// A fresh-reservation link is followed rather than trusted: the
			// page behind it may carry a new captcha.
			if link, ok := startNewLink(body); ok {
				s.log.Debug().Str("href", link).Msg("already registered, starting new reservation")
				body, err = s.get(ctx, link)
				if err != nil {
					return err
				}
				continue
			}
			if strings.Contains(body, markerStartNew) || strings.Contains(body, markerQuickOverview) {
				s.advance(StateRegistered)
				return nil
			}
			return errf(KindCaptchaNotFound, "no captcha image on registration page and no sign of an active registration")
		}

		text, err := s.solver.Solve(ctx, img)
		if err != nil {
			s.log.Warn().Err(err).Int("attempt", attempt).Msg("captcha solver failed")
			metrics.CaptchaRetries.Inc()
			if body, err = s.get(ctx, ""); err != nil {
				return err
			}
			continue
		}
		text = strings.TrimSpace(text)
		if len(text) < 4 {
			// The portal's captchas are at least four glyphs; shorter output
			// means the OCR missed some. Submitting would burn the token.
			s.log.Debug().Str("text", text).Int("attempt", attempt).Msg("captcha text too short, refetching")
			metrics.CaptchaRetries.Inc()
			if body, err = s.get(ctx, ""); err != nil {
				return err
			}
			continue
		}

		token, ok := formToken(body)
		if !ok {
			return errf(KindTokenNotFound, "registration form token not found, page layout may have changed")
		}
		resp, err := s.postForm(ctx, "index.php", url.Values{
			"sform_token":                      {token},
			"sform_step":                       {"3"},
			"mod":                              {"000"},
			"benutzernummer":                   {s.creds.LibraryNumber},
			"datenschutzerklaerung_akzeptiert": {"X"},
			"captcha":                          {text},
		})
		if err != nil {
			return err
		}

		switch {
		case strings.Contains(resp, markerSuccess):
			if link, ok := continueLink(resp); ok {
				// Best effort: the success page links onward, but the
				// registration is already confirmed.
				if _, err := s.get(ctx, link); err != nil {
					s.log.Warn().Err(err).Msg("could not follow confirmation link")
				}
			}
			s.log.Info().Int("attempt", attempt).Msg("registration confirmed")
			s.advance(StateRegistered)
			return nil
		case strings.Contains(resp, markerStartNew):
			if link, ok := startNewLink(resp); ok {
				body, err = s.get(ctx, link)
				if err != nil {
					return err
				}
				continue
			}
			s.advance(StateRegistered)
			return nil
		case strings.Contains(resp, markerQuickOverview):
			s.advance(StateRegistered)
			return nil
		default:
			s.log.Debug().Int("attempt", attempt).Msg("captcha rejected, refetching")
			metrics.CaptchaRetries.Inc()
			if body, err = s.get(ctx, ""); err != nil {
				return err
			}
		}
	}
	return errf(KindCaptchaExhausted, "could not solve captcha in %d attempts", s.captchaRetries)
}

// Authenticate runs the full login plus registration sequence.
func (s *Session) Authenticate(ctx context.Context) error {
	body, err := s.Login(ctx)
	if err != nil {
		return err
	}
	return s.ConfirmRegistration(ctx, body)
}
