package main

import (
	"net/http"
	"strings"

	"github.com/asdine/storm/v3"
	"github.com/elevarm/goelevarm/comms"
	"github.com/elevarm/goelevarm/onboard"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"
)

// App carries the daemon's shared state into the HTTP handlers.
type App struct {
	DB        *storm.DB
	Arm       *onboard.Arm
	Setpoints *onboard.SetpointStore
	MoveLog   *StormMoveLog
	Conductor *comms.Conductor
	Log       *zap.SugaredLogger

	JWTSecret []byte
	JWTIssuer string
	Debug     bool
	HTMLDir   string
}

// MovePayload describes an accepted move request.
type MovePayload struct {
	Setpoint       string `json:"setpoint"`
	SwitchingSides bool   `json:"switchingSides"`
	Phase          string `json:"phase"`
}

// SetpointPayload is one named preset in the listing.
type SetpointPayload struct {
	Name   string           `json:"name"`
	Target onboard.ArmState `json:"target"`
}

// ArmState reports the current telemetry snapshot.
func (app *App) ArmState(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, app.Arm.Snapshot())
}

// ListSetpoints returns every named preset and its target.
func (app *App) ListSetpoints(w http.ResponseWriter, r *http.Request) {
	names := app.Setpoints.Names()
	payload := make([]SetpointPayload, 0, len(names))
	for _, name := range names {
		state, _ := app.Setpoints.Resolve(name)
		payload = append(payload, SetpointPayload{Name: name, Target: state})
	}
	render.JSON(w, r, payload)
}

// RequestMove starts a move toward a named preset. The response reports how
// the request was classified; completion is visible over telemetry.
func (app *App) RequestMove(w http.ResponseWriter, r *http.Request) {
	name := strings.ToUpper(chi.URLParam(r, "name"))

	if _, ok := app.Setpoints.Resolve(name); !ok {
		render.Render(w, r, ErrNotFound)
		return
	}

	m := app.Arm.MoveToNamed(name)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, MovePayload{
		Setpoint:       m.Setpoint,
		SwitchingSides: m.SwitchingSides(),
		Phase:          m.Phase(),
	})
}

// AllStop abandons any active move and pins the mechanism in place.
func (app *App) AllStop(w http.ResponseWriter, r *http.Request) {
	app.Arm.Hold()
	render.JSON(w, r, app.Arm.Snapshot())
}

// RecentMoves lists the move log, newest first.
func (app *App) RecentMoves(w http.ResponseWriter, r *http.Request) {
	records, err := app.MoveLog.Recent(50)
	if err != nil {
		render.Render(w, r, ErrRender(err))
		return
	}
	render.JSON(w, r, records)
}

func (app *App) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.RedirectSlashes)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", app.Login)

		r.Route("/", func(r chi.Router) {
			r.Use(app.ValidateJWT)

			r.Get("/refresh_token", app.JWTRefresh)

			r.Route("/arm", func(r chi.Router) {
				r.Get("/state", app.ArmState)
				r.Get("/setpoints", app.ListSetpoints)
				r.Get("/moves", app.RecentMoves)
				r.Post("/move/{name}", app.RequestMove)
				r.Post("/allstop", app.AllStop)
			})
		})
	})

	r.Route("/ws", func(r chi.Router) {
		if !app.Debug {
			r.Use(app.ValidateJWT)
		} else {
			app.Log.Warn("running in debug mode, websocket authentication disabled")
		}

		r.Get("/telemetry", app.Conductor.ServeHTTP)
	})

	FileServer(r, "/", http.Dir(app.HTMLDir))

	return r
}

// FileServer conveniently sets up a http.FileServer handler to serve
// static files from a http.FileSystem.
func FileServer(r chi.Router, path string, root http.FileSystem) {
	if strings.ContainsAny(path, "{}*") {
		panic("FileServer does not permit URL parameters.")
	}

	fs := http.StripPrefix(path, http.FileServer(root))

	if path != "/" && path[len(path)-1] != '/' {
		r.Get(path, http.RedirectHandler(path+"/", 301).ServeHTTP)
		path += "/"
	}
	path += "*"

	r.Get(path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.ServeHTTP(w, r)
	}))
}
