// stepper-console is an interactive line-oriented front end for the
// motion controller, in the style of the original serial command
// interface. It runs the controller against the simulated backend and
// accepts commands from stdin or from a serial port, so an external
// show-control box can drive the axis over RS-232/USB.
//
// Commands:
//
//	MOVE <pos>    absolute move in steps
//	JOG <delta>   relative move in steps
//	SPEED <v>     set profile max speed (steps/sec)
//	ACCEL <v>     set profile acceleration (steps/sec^2)
//	HOME          run the auto-range homing sequence
//	STOP          decelerated stop
//	ESTOP         emergency stop
//	ENABLE        enable outputs (also releases ESTOP)
//	DISABLE       disable outputs
//	STATUS        print a status line
//	QUIT          exit (stdin only)
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tarm/serial"

	"skullstepper-go/pkg/backend"
	"skullstepper-go/pkg/config"
	"skullstepper-go/pkg/controller"
	"skullstepper-go/pkg/log"
	"skullstepper-go/pkg/safety"
	"skullstepper-go/pkg/shared"
)

func main() {
	port := flag.String("port", "", "Serial port device (default: stdin/stdout)")
	baud := flag.Int("baud", 115200, "Serial baud rate")
	travel := flag.Int64("travel", 1000, "Simulated track length in steps")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger := log.GetLogger("console")
	if *debug {
		logger.SetLevel(log.DEBUG)
	}

	cfg, err := config.NewStore(config.Defaults())
	if err != nil {
		logger.Error("config: %v", err)
		os.Exit(1)
	}

	sim := backend.NewSim(backend.SimConfig{
		LeftLimit:    -10,
		RightLimit:   *travel + 10,
		Speed:        cfg.Profile().MaxSpeed,
		Acceleration: cfg.Profile().Acceleration,
	})
	left := safety.NewLimitSwitch(safety.Left, sim.LeftLevel)
	right := safety.NewLimitSwitch(safety.Right, sim.RightLevel)
	sim.OnLeftEdge(left.Input().Trigger)
	sim.OnRightEdge(right.Input().Trigger)
	mon := safety.NewMonitor(left, right, logger.WithPrefix("safety"))

	ctrl := controller.New(cfg, sim, sim.AlarmLevel, mon, nil, logger.WithPrefix("motion"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sim.Start(ctx, 0)
	go ctrl.Run(ctx)

	var in io.Reader = os.Stdin
	var out io.Writer = os.Stdout
	if *port != "" {
		p, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
		if err != nil {
			logger.Error("serial: %v", err)
			os.Exit(1)
		}
		defer p.Close()
		in, out = p, p
		logger.Info("listening on %s at %d baud", *port, *baud)
	} else {
		fmt.Fprintln(out, "stepper console ready, type HELP for commands")
	}

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := execute(ctrl, out, line); quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Error("input: %v", err)
	}
}

// execute runs one command line. It returns true on QUIT.
func execute(ctrl *controller.Controller, out io.Writer, line string) bool {
	fields := strings.Fields(strings.ToUpper(line))
	cmd := fields[0]

	switch cmd {
	case "MOVE", "JOG":
		if len(fields) != 2 {
			fmt.Fprintf(out, "ERR %s requires a position\n", cmd)
			return false
		}
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Fprintf(out, "ERR bad position %q\n", fields[1])
			return false
		}
		if cmd == "MOVE" {
			reply(out, ctrl.MoveTo(v))
		} else {
			reply(out, ctrl.Move(v))
		}

	case "SPEED", "ACCEL":
		if len(fields) != 2 {
			fmt.Fprintf(out, "ERR %s requires a value\n", cmd)
			return false
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Fprintf(out, "ERR bad value %q\n", fields[1])
			return false
		}
		if cmd == "SPEED" {
			reply(out, ctrl.SetMaxSpeed(v))
		} else {
			reply(out, ctrl.SetAcceleration(v))
		}

	case "HOME":
		reply(out, ctrl.Home())
	case "STOP":
		reply(out, ctrl.Stop())
	case "ESTOP":
		reply(out, ctrl.EmergencyStopNow())
	case "ENABLE":
		reply(out, ctrl.Enable())
	case "DISABLE":
		reply(out, ctrl.Disable())

	case "STATUS":
		printStatus(out, ctrl.Status())

	case "HELP":
		fmt.Fprintln(out, "MOVE <pos> | JOG <delta> | SPEED <v> | ACCEL <v> | HOME | STOP | ESTOP | ENABLE | DISABLE | STATUS | QUIT")

	case "QUIT", "EXIT":
		fmt.Fprintln(out, "BYE")
		return true

	default:
		fmt.Fprintf(out, "ERR unknown command %q\n", cmd)
	}
	return false
}

func reply(out io.Writer, accepted bool) {
	if accepted {
		fmt.Fprintln(out, "OK")
	} else {
		fmt.Fprintln(out, "ERR queue full")
	}
}

func printStatus(out io.Writer, st shared.Status) {
	fmt.Fprintf(out, "STATUS system=%s motion=%s safety=%s pos=%d target=%d speed=%.1f homed=%t fault=%t range=[%d,%d]\n",
		st.SystemState, st.MotionState, st.SafetyState,
		st.CurrentPosition, st.TargetPosition, st.CurrentSpeed,
		st.Homed, st.LimitFaultActive, st.MinPosition, st.MaxPosition)
}
