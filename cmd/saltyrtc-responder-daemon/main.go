// Command saltyrtc-responder-daemon is a long-running responder client: it
// loads a saltyconfig.Config, dials the relay over a length-prefixed TCP
// transport, drives a signaling.Signaling instance through both handshakes,
// and registers the connection with a statusserver for introspection. It
// follows the teacher's app.go service wrapper shape (kardianos/service +
// kardianos/osext, -service/-install/-uninstall/-start/-stop flags) but is outer-surface demonstration code, not part of the core
// module's public API.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/ipoluianov/gomisc/logger"
	"github.com/kardianos/osext"
	"github.com/kardianos/service"

	"github.com/saltyrtc/saltyrtc-go/closecode"
	"github.com/saltyrtc/saltyrtc-go/metrics"
	"github.com/saltyrtc/saltyrtc-go/saltyconfig"
	"github.com/saltyrtc/saltyrtc-go/signaling"
	"github.com/saltyrtc/saltyrtc-go/statusserver"
	"github.com/saltyrtc/saltyrtc-go/task"
)

var registry = statusserver.NewRegistry()

func setAppPath() {
	exePath, err := osext.ExecutableFolder()
	if err != nil {
		return
	}
	_ = os.Chdir(exePath)
}

func newSvcConfig() *service.Config {
	cfg := &service.Config{
		Name:        "saltyrtc-responder-daemon",
		DisplayName: "SaltyRTC Responder Daemon",
		Description: "Connects to a SaltyRTC relay as a responder and runs the configured task.",
	}
	cfg.Arguments = append(cfg.Arguments, "-service")
	return cfg
}

type program struct {
	stop chan struct{}
}

func (p *program) Start(_ service.Service) error {
	p.stop = make(chan struct{})
	go run(p.stop)
	return nil
}

func (p *program) Stop(_ service.Service) error {
	close(p.stop)
	return nil
}

func main() {
	setAppPath()

	serviceFlag := flag.Bool("service", false, "run as service")
	installFlag := flag.Bool("install", false, "install service")
	uninstallFlag := flag.Bool("uninstall", false, "uninstall service")
	startFlag := flag.Bool("start", false, "start service")
	stopFlag := flag.Bool("stop", false, "stop service")
	flag.Parse()

	prg := &program{}
	svc, err := service.New(prg, newSvcConfig())
	if err != nil {
		logger.Println("[ERROR]", "service.New:", err)
		os.Exit(1)
	}

	switch {
	case *serviceFlag:
		if err := svc.Run(); err != nil {
			logger.Println("[ERROR]", "service.Run:", err)
		}
	case *installFlag:
		fatalIf(svc.Install())
		fmt.Println("service installed")
	case *uninstallFlag:
		fatalIf(svc.Uninstall())
		fmt.Println("service uninstalled")
	case *startFlag:
		fatalIf(svc.Start())
		fmt.Println("service started")
	case *stopFlag:
		fatalIf(svc.Stop())
		fmt.Println("service stopped")
	default:
		stop := make(chan struct{})
		run(stop)
	}
}

func fatalIf(err error) {
	if err != nil {
		logger.Println("[ERROR]", err)
		os.Exit(1)
	}
}

// run loads configuration, starts the status server, and dials the relay
// in a loop until stop is closed.
func run(stop chan struct{}) {
	metrics.MustRegister()

	conf, err := saltyconfig.LoadConfigFromFile("config.json")
	if err != nil {
		logger.Println("[ERROR]", "run", "LoadConfigFromFile:", err)
		return
	}

	status := statusserver.NewServer(registry)
	status.Start(8766)
	defer status.Stop()

	permKey, err := saltyconfig.LoadOrCreatePermanentKey(conf.Keys.PermanentKeyFile)
	if err != nil {
		logger.Println("[ERROR]", "run", "LoadOrCreatePermanentKey:", err)
		return
	}

	cfg := signaling.Config{
		Role:                 signaling.RoleResponder,
		PermanentKey:         permKey,
		Tasks:                []task.Task{&loggingTask{}},
		IngressRatePerSecond: conf.Connect.IngressRatePerSecond,
	}
	if key, ok, err := conf.Keys.ExpectedServerKey(); err != nil {
		logger.Println("[ERROR]", "run", "ExpectedServerKey:", err)
		return
	} else if ok {
		cfg.ExpectedServerKey = &key
	}
	if err := applyPeerConfig(&cfg, conf.Peer); err != nil {
		logger.Println("[ERROR]", "run", "applyPeerConfig:", err)
		return
	}

	s, err := signaling.New(cfg)
	if err != nil {
		logger.Println("[ERROR]", "run", "signaling.New:", err)
		return
	}
	registry.Register("responder", s)
	defer registry.Unregister("responder")

	closed := make(chan struct{})
	s.Events().OnClose(func(code closecode.Code, reason string) {
		logger.Println("run", "signaling closed:", code, reason)
		close(closed)
	})

	addr := net.JoinHostPort(conf.Server.Host, fmt.Sprint(conf.Server.Port))
	tr := newTCPTransport(addr, conf.Connect, s)
	go tr.Run()
	s.Attach(tr)

	select {
	case <-stop:
		s.Disconnect("service stopping")
	case <-closed:
	}
}
