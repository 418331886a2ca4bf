package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AlecAivazis/survey/v2"

	"github.com/FairRootGroup/fairmq-go/pkg/device"
	"github.com/FairRootGroup/fairmq-go/pkg/fairmqlog"
)

// controllerName identifies this process to ChangeDeviceState's control
// arbitration (§4.6); a single fairmq-device process is always its own
// device's sole controller.
const controllerName = "fairmq-device"

// awaitState blocks until d's main FSM reaches want, or ctx is done.
// The state is checked again after the subscriber is registered, so a
// transition that lands between the first check and the registration is
// not missed.
func awaitState(ctx context.Context, d *device.Device, want device.State) error {
	if d.CurrentState() == want {
		return nil
	}
	reached := make(chan struct{}, 1)
	d.OnStateChange("cli-controller", func(newState, _ device.State) {
		if newState == want {
			select {
			case reached <- struct{}{}:
			default:
			}
		}
	})
	if d.CurrentState() == want {
		return nil
	}
	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runStaticController drives d through the fixed startup sequence of
// §4.6's default controller, then blocks until ctx is cancelled (SIGINT,
// SIGTERM) and drives the teardown sequence before returning.
func runStaticController(ctx context.Context, d *device.Device) error {
	steps := []struct {
		transition device.Transition
		reach      device.State
	}{
		{device.InitDevice, device.Initialized},
		{device.Bind, device.Bound},
		{device.Connect, device.DeviceReady},
		{device.InitTask, device.Ready},
		{device.Run, device.Ready}, // Running is transient: the default Run hook returns immediately
	}
	for _, step := range steps {
		if err := d.ChangeDeviceState(controllerName, step.transition); err != nil {
			return fmt.Errorf("static controller: %w", err)
		}
		if err := awaitState(ctx, d, step.reach); err != nil {
			return fmt.Errorf("static controller: waiting for %v: %w", step.reach, err)
		}
	}

	fairmqlog.Info("fairmq-device: running; waiting for shutdown signal")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return runShutdownSequence(shutdownCtx, d)
}

func runShutdownSequence(ctx context.Context, d *device.Device) error {
	teardown := []struct {
		transition device.Transition
		reach      device.State
	}{
		{device.ResetTask, device.DeviceReady},
		{device.ResetDevice, device.Idle},
		{device.End, device.Exiting},
	}
	for _, step := range teardown {
		if err := d.ChangeDeviceState(controllerName, step.transition); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		if err := awaitState(ctx, d, step.reach); err != nil {
			return fmt.Errorf("shutdown: waiting for %v: %w", step.reach, err)
		}
	}
	return nil
}

// interactiveTransitions is the ordered set of externally-drivable
// transitions offered by the --control interactive picker; Auto,
// CompleteInit, and ErrorFound are framework-internal and never offered.
var interactiveTransitions = []device.Transition{
	device.InitDevice,
	device.Bind,
	device.Connect,
	device.InitTask,
	device.Run,
	device.Stop,
	device.ResetTask,
	device.ResetDevice,
	device.End,
}

func transitionNames() []string {
	names := make([]string, len(interactiveTransitions))
	for i, t := range interactiveTransitions {
		names[i] = t.String()
	}
	return names
}

// runInteractiveController reads single-character commands from stdin:
// 'n' prompts for the next transition to send via a survey.Select picker,
// 's' prints the current state, 'q' runs the teardown sequence and exits.
func runInteractiveController(ctx context.Context, d *device.Device) error {
	fmt.Println("fairmq-device interactive control: [n] next transition, [s] state, [q] quit")
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return runShutdownSequence(ctx, d)
		default:
		}

		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		switch line[0] {
		case 'q':
			return runShutdownSequence(ctx, d)
		case 's':
			fmt.Printf("state: %v\n", d.CurrentState())
		case 'n':
			var choice string
			prompt := &survey.Select{
				Message: "transition",
				Options: transitionNames(),
			}
			if err := survey.AskOne(prompt, &choice); err != nil {
				fmt.Printf("input error: %v\n", err)
				continue
			}
			for _, t := range interactiveTransitions {
				if t.String() == choice {
					if err := d.ChangeDeviceState(controllerName, t); err != nil {
						fmt.Printf("transition failed: %v\n", err)
					}
					break
				}
			}
		default:
			fmt.Printf("[%c] --> invalid input.\n", line[0])
		}
	}
	return runShutdownSequence(ctx, d)
}
