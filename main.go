package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/asdine/storm/v3"
	"github.com/caarlos0/env/v6"
	"github.com/elevarm/goelevarm/comms"
	"github.com/elevarm/goelevarm/onboard"
	"github.com/elevarm/goelevarm/onboard/canbus"
	"github.com/elevarm/goelevarm/onboard/hardware"
	"go.uber.org/zap"
)

type EnvConfig struct {
	JWT_ISSUER string `env:"DEVICE_UUID" envDefault:"DEV"`
	JWT_SECRET string `env:"JWT_SECRET" envDefault:"xWumOlRfhu+LBi2F2e1yF4FiaopQ5mr8klL4fpILnlI="`
	DEBUG      bool   `env:"DEBUG" envDefault:"0"`
	DATADIR    string `env:"DATADIR" envDefault:"./tmp"`
	HTMLDIR    string `env:"HTMLDIR" envDefault:"./frontend/dist/"`
}

func main() {
	simulated := flag.Bool("sim", false, "run against simulated axes instead of the CAN bus")
	port := flag.String("port", "0.0.0.0:80", "ip:port to listen on")
	configPath := flag.String("config", "./arm_config.yaml", "device config file")
	tick := flag.Duration("tick", 20*time.Millisecond, "control loop period")
	flag.Parse()

	var envConfig EnvConfig
	if err := env.Parse(&envConfig); err != nil {
		panic(err)
	}

	logger := newLogger(envConfig.DEBUG)
	defer logger.Sync()
	log := logger.Sugar()

	yamlFile, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatalw("unable to read config file", "path", *configPath, "err", err)
	}

	config, err := onboard.LoadArmConfig(yamlFile)
	if err != nil {
		log.Fatalw("unable to load config", "err", err)
	}

	db, err := openDb(filepath.Join(envConfig.DATADIR, "live.db"))
	if err != nil {
		log.Fatalw("unable to open database", "err", err)
	}
	defer db.Close()

	moveLog, err := NewStormMoveLog(db)
	if err != nil {
		log.Fatalw("unable to init move log", "err", err)
	}

	elevator, elbow, err := buildAxes(config, *simulated, *tick, log)
	if err != nil {
		log.Fatalw("unable to init axes", "err", err)
	}

	store := onboard.NewSetpointStore(config.Setpoints)
	arm := onboard.NewArm(elevator, elbow, store, config.Safety, config.Geometry, log)
	arm.SetMoveRecorder(moveLog)

	conductor := comms.NewConductor(arm, log)
	arm.SetTelemetrySink(conductor)

	app := &App{
		DB:        db,
		Arm:       arm,
		Setpoints: store,
		MoveLog:   moveLog,
		Conductor: conductor,
		Log:       log,
		JWTSecret: []byte(envConfig.JWT_SECRET),
		JWTIssuer: envConfig.JWT_ISSUER,
		Debug:     envConfig.DEBUG,
		HTMLDir:   envConfig.HTMLDIR,
	}

	go startShell(app)

	go func() {
		log.Infow("listening", "addr", *port)
		if err := http.ListenAndServe(*port, app.buildRouter()); err != nil {
			log.Fatalw("http server failed", "err", err)
		}
	}()

	ticker := time.NewTicker(*tick)
	defer ticker.Stop()
	for range ticker.C {
		arm.Tick()
	}
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

func openDb(dbFile string) (db *storm.DB, err error) {
	dir := filepath.Dir(dbFile)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		os.Mkdir(dir, 0755)
	}

	db, err = storm.Open(dbFile)
	if err != nil {
		return
	}

	if err := db.Init(&User{}); err != nil {
		return nil, err
	}

	return
}

// buildAxes wires both mechanism axes, either against real drive nodes on
// the CAN bus or as pure simulations for bench work.
func buildAxes(config onboard.ArmConfig, simulated bool, tick time.Duration,
	log *zap.SugaredLogger) (elevator, elbow hardware.AxisController, err error) {

	if simulated {
		step := func(axis onboard.AxisConfig) float64 {
			return axis.MaxVelocity * tick.Seconds()
		}
		elevator = hardware.NewSimAxis("elevator", config.Elevator.Min, config.Elevator.Max, step(config.Elevator))
		elbow = hardware.NewSimAxis("elbow", config.Elbow.Min, config.Elbow.Max, step(config.Elbow))
		return
	}

	bus, err := canbus.NewCANBus(config.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to open bus %s: %w", config.Bus, err)
	}

	nodes := make(map[uint32]*hardware.ControlNode)
	node := func(addr uint32) (*hardware.ControlNode, error) {
		if n, ok := nodes[addr]; ok {
			return n, nil
		}
		n, err := hardware.NewControlNode(bus, addr, log)
		if err != nil {
			return nil, err
		}
		if err = n.SetUpdateInterval(tick); err != nil {
			return nil, err
		}
		nodes[addr] = n
		return n, nil
	}

	axis := func(name string, cfg onboard.AxisConfig) (*hardware.CANAxis, error) {
		n, err := node(cfg.Node)
		if err != nil {
			return nil, err
		}
		return hardware.NewCANAxis(n, hardware.AxisParams{
			Name:    name,
			Channel: cfg.Channel,
			Scale:   cfg.Scale,
			Offset:  cfg.Offset,
			Min:     cfg.Min,
			Max:     cfg.Max,
		}, log)
	}

	if elevator, err = axis("elevator", config.Elevator); err != nil {
		return nil, nil, err
	}
	if elbow, err = axis("elbow", config.Elbow); err != nil {
		return nil, nil, err
	}
	return
}

func startShell(app *App) {
	shell := ishell.New()
	shell.Println("Arm development shell")
	shell.ShowPrompt(true)

	setpointNames := func([]string) []string {
		return app.Setpoints.Names()
	}

	shell.AddCmd(&ishell.Cmd{
		Name:      "move",
		Completer: setpointNames,
		Help:      "move <setpoint>",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("usage: move <setpoint>"))
				return
			}
			name := strings.ToUpper(c.Args[0])
			m := app.Arm.MoveToNamed(name)
			c.Printf("moving to %s (switching sides: %v)\n", name, m.SwitchingSides())
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "show the current mechanism state",
		Func: func(c *ishell.Context) {
			snap := app.Arm.Snapshot()
			c.Printf("elbow: %.1f deg  elevator: %.1f in  front: %v\n",
				snap.ElbowAngle, snap.ElevatorHeight, snap.OnFront)
			if snap.ActiveMove != "" {
				c.Printf("active move: %s (%s)\n", snap.ActiveMove, snap.MovePhase)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "setpoints",
		Help: "list the named presets",
		Func: func(c *ishell.Context) {
			for _, name := range app.Setpoints.Names() {
				state, _ := app.Setpoints.Resolve(name)
				c.Printf("%-8s elbow %6.1f deg  elevator %5.1f in\n",
					name, state.ElbowAngle, state.ElevatorHeight)
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "allstop",
		Help: "abandon the active move and hold position",
		Func: func(c *ishell.Context) {
			app.Arm.Hold()
			c.Println("holding position")
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "moves",
		Help: "show the recent move log",
		Func: func(c *ishell.Context) {
			records, err := app.MoveLog.Recent(10)
			if err != nil {
				c.Err(err)
				return
			}
			for _, rec := range records {
				c.Printf("%s %-8s %-10s %s\n",
					rec.Finished.Format(time.RFC3339), rec.Setpoint, rec.Outcome,
					rec.Finished.Sub(rec.Requested).Round(time.Millisecond))
			}
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "createsuperuser",
		Help: "createsuperuser <email> <password>",
		Func: func(c *ishell.Context) {
			c.ShowPrompt(false)
			defer c.ShowPrompt(true)

			var email string
			if len(c.Args) >= 1 {
				email = c.Args[0]
			} else {
				c.Print("Email: ")
				email = c.ReadLine()
			}

			var password string
			if len(c.Args) >= 2 {
				password = c.Args[1]
			} else {
				c.Print("Password: ")
				password = c.ReadPassword()
			}

			user := &User{
				Email: email,
				Name:  email,
				Admin: true,
			}
			user.SetPassword([]byte(password))
			if err := app.DB.Save(user); err != nil {
				c.Err(err)
				return
			}

			c.Println("Superuser created")
		},
	})

	shell.Run()
}
