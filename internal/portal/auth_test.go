package portal_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/seat-scheduler/internal/portal"
)

const captchaPage = `<html><body>
<p>Sie sind angemeldet als mmuster</p>
<form method="post" action="index.php">
<input type="hidden" name="sform_token" value="tok-1">
<img src="data:image/jpeg;base64,QUJDRA==" alt="captcha">
</form>
</body></html>`

const captchaPageNoToken = `<html><body>
<p>Sie sind angemeldet als mmuster</p>
<img src="data:image/jpeg;base64,QUJDRA==" alt="captcha">
</body></html>`

const confirmedPage = `<html><body><h1>Erfolg</h1>
<p>Ihre Anmeldung wurde bestätigt.</p>
</body></html>`

const rejectedPage = `<html><body>
<p>Der eingegebene Code war leider falsch.</p>
</body></html>`

const anonymousPage = `<html><body>
<form method="post"><input name="httpd_username"><input name="httpd_password"></form>
</body></html>`

// authServer fakes the portal's login and registration endpoints. The
// accepted captcha text is ZX12.
type authServer struct {
	*httptest.Server
	mu           sync.Mutex
	loginPage    string
	confirmPosts int
	refetches    int
}

func newAuthServer(t *testing.T) *authServer {
	t.Helper()
	as := &authServer{loginPage: captchaPage}
	as.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		as.mu.Lock()
		defer as.mu.Unlock()
		switch {
		case r.Method == http.MethodPost && r.PostFormValue("httpd_username") != "":
			io.WriteString(w, as.loginPage)
		case r.Method == http.MethodPost && r.PostFormValue("captcha") != "":
			as.confirmPosts++
			ok := r.PostFormValue("captcha") == "ZX12" &&
				r.PostFormValue("sform_token") == "tok-1" &&
				r.PostFormValue("sform_step") == "3" &&
				r.PostFormValue("benutzernummer") == "123456"
			if ok {
				io.WriteString(w, confirmedPage)
			} else {
				io.WriteString(w, rejectedPage)
			}
		default:
			as.refetches++
			io.WriteString(w, captchaPage)
		}
	}))
	t.Cleanup(as.Close)
	return as
}

func (as *authServer) confirms() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.confirmPosts
}

func TestAuthenticateSolvesCaptcha(t *testing.T) {
	srv := newAuthServer(t)
	solver := &fakeSolver{answers: []string{"ZX12"}}
	s := newTestSession(t, srv.URL, solver, 5)

	require.NoError(t, s.Authenticate(context.Background()))
	assert.Equal(t, portal.StateRegistered, s.State())
	assert.Equal(t, 1, srv.confirms())
	assert.Equal(t, 1, solver.calls)
}

func TestAuthenticateRetriesShortCaptchaWithoutSubmitting(t *testing.T) {
	srv := newAuthServer(t)
	solver := &fakeSolver{answers: []string{"zx", "ZX12"}}
	s := newTestSession(t, srv.URL, solver, 5)

	require.NoError(t, s.Authenticate(context.Background()))
	assert.Equal(t, 2, solver.calls, "short read forces a second round")
	assert.Equal(t, 1, srv.confirms(), "short read must not be submitted")
}

func TestAuthenticateRecoversFromRejectedCaptcha(t *testing.T) {
	srv := newAuthServer(t)
	solver := &fakeSolver{answers: []string{"WRNG", "ZX12"}}
	s := newTestSession(t, srv.URL, solver, 5)

	require.NoError(t, s.Authenticate(context.Background()))
	assert.Equal(t, 2, srv.confirms())
}

func TestAuthenticateExhaustsCaptchaBudget(t *testing.T) {
	srv := newAuthServer(t)
	solver := &fakeSolver{answers: []string{"ab"}}
	s := newTestSession(t, srv.URL, solver, 3)

	err := s.Authenticate(context.Background())
	require.ErrorIs(t, err, portal.ErrCaptchaExhausted)
	assert.Equal(t, 3, solver.calls, "every round counts against the budget")
	assert.Equal(t, 0, srv.confirms())
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	srv := newAuthServer(t)
	srv.loginPage = anonymousPage
	s := newTestSession(t, srv.URL, &fakeSolver{answers: []string{"ZX12"}}, 5)

	err := s.Authenticate(context.Background())
	require.ErrorIs(t, err, portal.ErrAuthFailed)
	assert.Contains(t, err.Error(), "mmuster")
}

func TestConfirmRegistrationFailsWithoutToken(t *testing.T) {
	srv := newAuthServer(t)
	s := newTestSession(t, srv.URL, &fakeSolver{answers: []string{"ZX12"}}, 5)

	err := s.ConfirmRegistration(context.Background(), captchaPageNoToken)
	require.ErrorIs(t, err, portal.ErrTokenNotFound)
	assert.Equal(t, 0, srv.confirms())
}

func TestConfirmRegistrationFollowsStartLinkToFreshCaptcha(t *testing.T) {
	srv := newAuthServer(t)
	s := newTestSession(t, srv.URL, &fakeSolver{answers: []string{"ZX12"}}, 5)

	already := `<html><body>Sie sind angemeldet als mmuster
<a href="?fresh=1">Neue Platzreservierung starten</a></body></html>`
	require.NoError(t, s.ConfirmRegistration(context.Background(), already))
	assert.Equal(t, 1, srv.confirms(), "fresh page behind the link carries a new captcha")
}

func TestConfirmRegistrationAcceptsExistingRegistration(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()
	s := newTestSession(t, srv.URL, &fakeSolver{answers: []string{"ZX12"}}, 5)

	overview := `<html><body>Schnellübersicht über Ihre Reservierungen</body></html>`
	require.NoError(t, s.ConfirmRegistration(context.Background(), overview))
	assert.Equal(t, portal.StateRegistered, s.State())
	assert.False(t, called, "no request needed when the overview is already shown")
}

func TestConfirmRegistrationFailsWhenNothingRecognizable(t *testing.T) {
	srv := newAuthServer(t)
	s := newTestSession(t, srv.URL, &fakeSolver{answers: []string{"ZX12"}}, 5)

	err := s.ConfirmRegistration(context.Background(), `<html><body>Sie sind angemeldet als mmuster</body></html>`)
	require.ErrorIs(t, err, portal.ErrCaptchaNotFound)
}
