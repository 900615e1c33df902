package benchmarks

import (
	"os"
	"path"
	"runtime"
	"runtime/pprof"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/zeu5/dqn-cartpole/util"
)

var (
	cpuprofile string
	memprofile string
)

// startProfiling starts the cpu profile when requested, the returned
// function stops it and writes the heap profile
func startProfiling() (func(), error) {
	dir := saveFile
	if dir == "" {
		dir = "."
	}
	if cpuprofile != "" || memprofile != "" {
		if err := util.EnsureDir(dir); err != nil {
			return nil, err
		}
	}
	stopCPU := func() {}
	if cpuprofile != "" {
		cpuProfPath := path.Join(dir, cpuprofile)
		logrus.Infof("profiling CPU to %s", cpuProfPath)
		f, err := os.Create(cpuProfPath)
		if err != nil {
			return nil, errors.Wrap(err, "could not create CPU profile")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "could not start CPU profile")
		}
		stopCPU = func() {
			pprof.StopCPUProfile()
			f.Close()
		}
	}

	return func() {
		stopCPU()
		if memprofile == "" {
			return
		}
		memProfPath := path.Join(dir, memprofile)
		logrus.Infof("profiling memory to %s", memProfPath)
		f, err := os.Create(memProfPath)
		if err != nil {
			logrus.WithError(err).Error("could not create memory profile")
			return
		}
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if err := pprof.WriteHeapProfile(f); err != nil {
			logrus.WithError(err).Error("could not write memory profile")
		}
	}, nil
}
