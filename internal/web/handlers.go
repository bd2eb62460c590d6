package web

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/seat-scheduler/internal/db"
	"github.com/example/seat-scheduler/internal/portal"
	"github.com/example/seat-scheduler/internal/store"
)

type tmplData struct {
	Title      string
	User       string
	Flash      string
	Error      string
	Jobs       []jobView
	Logs       []store.LogEntry
	Form       jobForm
	FormAction string
	Libraries  []libChoice
}

// jobView decorates a job with display-ready fields.
type jobView struct {
	store.Job
	Library  string
	Seats    string
	Schedule string
	NextRun  string
}

type libChoice struct {
	ID   int
	Name string
}

func libraryChoices() []libChoice {
	ids := portal.SortedLibraryIDs()
	choices := make([]libChoice, 0, len(ids))
	for _, id := range ids {
		choices = append(choices, libChoice{ID: id, Name: portal.Libraries[id]})
	}
	return choices
}

func (s *Server) jobViews(jobs []store.Job) []jobView {
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		v := jobView{
			Job:      j,
			Seats:    joinSeatList(j.PreferredSeats),
			Schedule: describeSchedule(j),
		}
		if name, ok := portal.LibraryName(j.LibraryID); ok {
			v.Library = name
		}
		if next, ok := s.sched.NextRun(j.ID); ok {
			v.NextRun = next.In(s.loc).Format("02.01.2006 15:04")
		}
		views = append(views, v)
	}
	return views
}

func describeSchedule(j store.Job) string {
	if j.Recurring {
		return fmt.Sprintf("%s at %02d:%02d, booking %d days ahead",
			j.CronDays, j.CronHour, j.CronMinute, j.DateOffset)
	}
	if j.RunAt != nil {
		return fmt.Sprintf("once at %s for %s", j.RunAt.Format("02.01.2006 15:04"), j.TargetDate)
	}
	return "unscheduled"
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	jobs, err := s.store.EnabledJobs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logs, err := s.store.RecentLogs(r.Context(), 10)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "dashboard.html", tmplData{
		Title: "Dashboard",
		User:  user,
		Flash: r.URL.Query().Get("flash"),
		Jobs:  s.jobViews(jobs),
		Logs:  logs,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	logs, err := s.store.RecentLogs(r.Context(), 100)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "history.html", tmplData{
		Title: "History",
		User:  user,
		Flash: r.URL.Query().Get("flash"),
		Logs:  logs,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	jobs, err := s.store.Jobs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.render(w, "jobs.html", tmplData{
		Title: "Jobs",
		User:  user,
		Flash: r.URL.Query().Get("flash"),
		Jobs:  s.jobViews(jobs),
	})
}

func (s *Server) handleJobNew(w http.ResponseWriter, r *http.Request) {
	form := jobForm{
		LibraryID:  1,
		TimeSlot:   "08:00-12:00",
		Recurring:  true,
		CronDays:   "mon,tue,wed,thu,fri",
		DateOffset: 2,
		Enabled:    true,
	}
	s.renderJobForm(w, r, form, "New Job", "/jobs", "")
}

func (s *Server) handleJobCreate(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobFromForm(r)
	if err == nil {
		err = s.store.CreateJob(r.Context(), &j)
	}
	if err != nil {
		s.renderJobForm(w, r, formFromJob(j), "New Job", "/jobs", err.Error())
		return
	}
	if err := s.sched.Schedule(j); err != nil {
		s.log.Error().Err(err).Int64("job_id", j.ID).Msg("job stored but not scheduled")
	}
	http.Redirect(w, r, "/jobs", http.StatusFound)
}

func (s *Server) handleJobEdit(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	j, err := s.store.Job(r.Context(), id)
	if err != nil {
		if db.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.renderJobForm(w, r, formFromJob(j), "Edit Job", fmt.Sprintf("/jobs/%d", id), "")
}

func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	j, err := s.jobFromForm(r)
	j.ID = id
	if err == nil {
		err = s.store.UpdateJob(r.Context(), j)
	}
	if err != nil {
		if db.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		s.renderJobForm(w, r, formFromJob(j), "Edit Job", fmt.Sprintf("/jobs/%d", id), err.Error())
		return
	}
	// Replaces the trigger; a now-disabled job just loses it.
	if err := s.sched.Schedule(j); err != nil {
		s.log.Error().Err(err).Int64("job_id", id).Msg("job updated but not rescheduled")
	}
	http.Redirect(w, r, "/jobs", http.StatusFound)
}

func (s *Server) handleJobDelete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	s.sched.Unschedule(id)
	if err := s.store.DeleteJob(r.Context(), id); err != nil && !db.IsNotFound(err) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/jobs", http.StatusFound)
}

func (s *Server) handleJobToggle(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	enabled, err := s.store.ToggleJob(r.Context(), id)
	if err != nil {
		if db.IsNotFound(err) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if enabled {
		j, err := s.store.Job(r.Context(), id)
		if err == nil {
			if err := s.sched.Schedule(j); err != nil {
				s.log.Error().Err(err).Int64("job_id", id).Msg("job enabled but not scheduled")
			}
		}
	} else {
		s.sched.Unschedule(id)
	}
	http.Redirect(w, r, "/jobs", http.StatusFound)
}

func (s *Server) handleJobRun(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	out, err := s.sched.RunJob(r.Context(), id, true)
	var flash string
	if err != nil {
		flash = "run failed: " + err.Error()
	} else {
		flash = "booked " + out.SeatDesc
	}
	http.Redirect(w, r, "/history?flash="+url.QueryEscape(flash), http.StatusFound)
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	s.render(w, "login.html", tmplData{Title: "Login"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if !s.sessions.Authenticate(username, password) {
		s.render(w, "login.html", tmplData{Title: "Login", Error: "Invalid username or password"})
		return
	}
	if err := s.sessions.SetSession(w, r, username); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

// jobForm carries job fields in the string shapes the HTML form uses.
type jobForm struct {
	ID               int64
	Name             string
	LibraryID        int
	TimeSlot         string
	GroupRoom        bool
	PreferredSection string
	PreferredSeats   string
	Recurring        bool
	CronDays         string
	DateOffset       int
	CronHour         int
	CronMinute       int
	RunAt            string
	TargetDate       string
	Enabled          bool
}

const runAtLayout = "2006-01-02T15:04"

func formFromJob(j store.Job) jobForm {
	f := jobForm{
		ID:               j.ID,
		Name:             j.Name,
		LibraryID:        j.LibraryID,
		TimeSlot:         j.TimeSlot,
		GroupRoom:        j.GroupRoom,
		PreferredSection: j.PreferredSection,
		PreferredSeats:   joinSeatList(j.PreferredSeats),
		Recurring:        j.Recurring,
		CronDays:         j.CronDays,
		DateOffset:       j.DateOffset,
		CronHour:         j.CronHour,
		CronMinute:       j.CronMinute,
		TargetDate:       j.TargetDate,
		Enabled:          j.Enabled,
	}
	if j.RunAt != nil {
		f.RunAt = j.RunAt.Format(runAtLayout)
	}
	return f
}

func (s *Server) jobFromForm(r *http.Request) (store.Job, error) {
	if err := r.ParseForm(); err != nil {
		return store.Job{}, err
	}
	j := store.Job{
		Name:             strings.TrimSpace(r.FormValue("name")),
		TimeSlot:         strings.TrimSpace(r.FormValue("time_slot")),
		GroupRoom:        r.FormValue("group_room") == "on",
		PreferredSection: strings.TrimSpace(r.FormValue("preferred_section")),
		PreferredSeats:   splitSeatList(r.FormValue("preferred_seats")),
		Recurring:        r.FormValue("kind") == "recurring",
		CronDays:         strings.TrimSpace(r.FormValue("cron_days")),
		TargetDate:       strings.TrimSpace(r.FormValue("target_date")),
		Enabled:          r.FormValue("enabled") == "on",
	}
	j.LibraryID, _ = strconv.Atoi(r.FormValue("library_id"))
	j.DateOffset, _ = strconv.Atoi(r.FormValue("date_offset"))
	j.CronHour, _ = strconv.Atoi(r.FormValue("cron_hour"))
	j.CronMinute, _ = strconv.Atoi(r.FormValue("cron_minute"))
	if v := strings.TrimSpace(r.FormValue("run_at")); v != "" {
		at, err := time.ParseInLocation(runAtLayout, v, s.loc)
		if err != nil {
			return j, fmt.Errorf("run time %q must be YYYY-MM-DDTHH:MM", v)
		}
		j.RunAt = &at
	}
	return j, nil
}

func (s *Server) renderJobForm(w http.ResponseWriter, r *http.Request, form jobForm, title, action, errMsg string) {
	user, _ := UserFromContext(r.Context())
	s.render(w, "job_form.html", tmplData{
		Title:      title,
		User:       user,
		Error:      errMsg,
		Form:       form,
		FormAction: action,
		Libraries:  libraryChoices(),
	})
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func splitSeatList(csv string) []int {
	var ns []int
	for _, p := range strings.Split(csv, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if n, err := strconv.Atoi(p); err == nil {
			ns = append(ns, n)
		}
	}
	return ns
}

func joinSeatList(ns []int) string {
	parts := make([]string, 0, len(ns))
	for _, n := range ns {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}
