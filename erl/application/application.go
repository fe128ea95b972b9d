/*
Package application runs the root of a supervision tree. An [App] applies the
runtime [config.Config], starts the tree through an [Application] callback
and calls a [context.CancelFunc] once the tree is gone, which is how a program
learns that its root supervisor gave up after exceeding its restart intensity.

	type MyApp struct{}

	func (MyApp) Start(self erl.PID, conf config.Config) (erl.PID, error) {
		children := []supervisor.ChildSpec{ ... }
		return supervisor.StartDefaultLink(self, children, conf.Supervisor)
	}

	func (MyApp) Stop() error { return nil }

	func main() {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		conf, err := config.Load(os.Getenv("OTP_CONFIG"))
		if err != nil {
			log.Fatal(err)
		}
		app, err := application.Start(MyApp{}, conf, cancel)
		if err != nil {
			log.Fatal(err)
		}

		<-ctx.Done()
		_ = app.Stop()
	}
*/
package application

import (
	"context"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/config"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/genserver"
)

type Application interface {
	// Start links the root of the supervision tree to [self] and returns it.
	Start(self erl.PID, conf config.Config) (erl.PID, error)
	// Stop runs before the tree is shut down by [App.Stop].
	Stop() error
}

type appArgs struct {
	app    Application
	conf   config.Config
	cancel context.CancelFunc
}

type appState struct {
	rootSup erl.PID
	cancel  context.CancelFunc
	stopped *atomic.Bool
}

// App is the handle returned by [Start].
type App struct {
	app     Application
	self    erl.PID
	stopped *atomic.Bool
}

// Start applies [conf] to the runtime and starts [app]. [cancel] is called when
// the application stops, whatever the reason.
func Start(app Application, conf config.Config, cancel context.CancelFunc) (*App, error) {
	if err := conf.Apply(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	stopped := atomic.NewBool(false)
	self, err := genserver.StartLink[appState](erl.RootPID(), appServer{stopped: stopped},
		appArgs{app: app, conf: conf, cancel: cancel})
	if err != nil {
		return nil, err
	}
	return &App{app: app, self: self, stopped: stopped}, nil
}

// Stop calls [Application.Stop] and then shuts the supervision tree down,
// waiting for it to finish.
func (ap *App) Stop() error {
	if !erl.IsAlive(ap.self) {
		return nil
	}
	erl.Log().Info("application stopping", zap.Stringer("app", ap.self))
	stopErr := ap.app.Stop()

	err := genserver.Stop(erl.UndefinedPID, ap.self,
		genserver.StopReason(exitreason.SupervisorShutdown),
		genserver.StopTimeout(chronos.Dur("60s")))
	if err != nil {
		erl.Log().Error("application did not stop cleanly", zap.Error(err))
	}
	return stopErr
}

// Stopped is true once the application process has exited.
func (ap *App) Stopped() bool {
	return ap.stopped.Load() || !erl.IsAlive(ap.self)
}

func (ap *App) PID() erl.PID {
	return ap.self
}

type appServer struct {
	stopped *atomic.Bool
}

var _ genserver.GenServer[appState] = appServer{}

func (s appServer) Init(self erl.PID, args any) (genserver.InitResult[appState], error) {
	initArgs := args.(appArgs)
	erl.ProcessFlag(self, erl.TrapExit, true)

	supPID, err := initArgs.app.Start(self, initArgs.conf)
	if err != nil {
		return genserver.InitResult[appState]{}, exitreason.Shutdown(err)
	}
	return genserver.InitResult[appState]{State: appState{
		rootSup: supPID,
		cancel:  initArgs.cancel,
		stopped: s.stopped,
	}}, nil
}

func (appServer) HandleCall(self erl.PID, request any, from genserver.From, state appState) (genserver.CallResult[appState], error) {
	return genserver.CallResult[appState]{State: state}, fmt.Errorf("application: unexpected call %T", request)
}

func (appServer) HandleCast(self erl.PID, request any, state appState) (genserver.CastResult[appState], error) {
	return genserver.CastResult[appState]{State: state}, nil
}

func (appServer) HandleInfo(self erl.PID, msg any, state appState) (genserver.InfoResult[appState], error) {
	exit, ok := msg.(erl.ExitMsg)
	if !ok || !exit.Proc.Equals(state.rootSup) {
		erl.DebugPrintf("application %v ignoring %#v", self, msg)
		return genserver.InfoResult[appState]{State: state}, nil
	}
	erl.Log().Error("root supervisor exited", zap.Stringer("sup", exit.Proc), zap.Error(exit.Reason))
	return genserver.InfoResult[appState]{State: state}, exitreason.Normal
}

func (appServer) HandleContinue(self erl.PID, continuation any, state appState) (appState, any, error) {
	return state, nil, nil
}

func (appServer) Terminate(self erl.PID, reason error, state appState) {
	if erl.IsAlive(state.rootSup) {
		err := genserver.Stop(self, state.rootSup, genserver.StopReason(exitreason.SupervisorShutdown))
		if err != nil {
			erl.Log().Warn("root supervisor stop failed", zap.Error(err))
		}
	}
	state.stopped.Store(true)
	state.cancel()
}
