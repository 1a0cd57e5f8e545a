package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"schedq/internal/job"
	"schedq/internal/sched"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		tracePath  string
		steps      int
	)
	cmd := &cobra.Command{
		Use:   "schedq",
		Short: "Run a mixed-priority demo workload through the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(configPath, tracePath, steps)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yml")
	cmd.Flags().StringVar(&tracePath, "trace", "", "write a CSV trace of scheduler events to this path")
	cmd.Flags().IntVarP(&steps, "steps", "n", 8, "steps in the Normal-priority background task")
	return cmd
}

func runDemo(configPath, tracePath string, steps int) error {
	cfg := sched.Load(configPath)
	log := logrus.WithField("component", "demo")
	log.Infof("loaded config: %+v", cfg)

	host := sched.NewLoopHost(cfg.Frame())
	defer host.Stop()

	s := sched.New(sched.WithConfig(cfg), sched.WithHost(host))
	if tracePath != "" {
		if err := s.EnableCSVTrace(tracePath); err != nil {
			return err
		}
		defer s.CloseTrace()
	}

	wd := sched.NewWatchdog(s, time.Duration(cfg.StallMS)*time.Millisecond, logrus.StandardLogger())
	stopWatch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.StallMS) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stopWatch:
				return
			case now := <-ticker.C:
				wd.Check(now)
			}
		}
	}()
	defer close(stopWatch)

	var wg sync.WaitGroup
	track := func(name string, work sched.Work) sched.Work {
		wg.Add(1)
		var wrap func(w sched.Work) sched.Work
		wrap = func(w sched.Work) sched.Work {
			return func(expired bool) (sched.Result, error) {
				res, err := w(expired)
				if err == nil && res.Continues() {
					return sched.Continue(wrap(res.Next())), nil
				}
				log.WithField("task", name).Info("finished")
				wg.Done()
				return res, err
			}
		}
		return wrap(work)
	}

	s.ScheduleCallback(sched.ImmediatePriority, track("immediate", job.Once(func() {
		log.Info("immediate task ran first")
	})))

	s.ScheduleCallback(sched.UserBlockingPriority, track("user-blocking", job.Once(func() {
		log.Info("user-blocking task ran")
	})))

	s.ScheduleCallback(sched.NormalPriority, track("steps", job.Steps(steps, func(i int) {
		log.WithField("step", i).Info("background step")
	})))

	items := make([]int, 64)
	for i := range items {
		items[i] = i
	}
	s.ScheduleCallback(sched.LowPriority, track("chunked", job.Chunked(items, func(int) {
		time.Sleep(200 * time.Microsecond) // simulate real per-item cost
	}, s.ShouldYield)))

	s.ScheduleCallback(sched.NormalPriority, track("delayed", job.Once(func() {
		log.Info("delayed task matured")
	})), sched.WithDelay(50*time.Millisecond))

	doomed := s.ScheduleCallback(sched.IdlePriority, job.Once(func() {
		log.Error("cancelled task ran, this should never happen")
	}))
	s.CancelCallback(doomed)

	wg.Wait()
	ready, timers := s.Len()
	log.WithFields(logrus.Fields{"ready": ready, "timers": timers}).Info("demo complete")
	return nil
}
