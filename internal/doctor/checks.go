package doctor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/conn-castle/whisper-provision/internal/capability"
	"github.com/conn-castle/whisper-provision/internal/config"
	"github.com/conn-castle/whisper-provision/internal/envmgr"
	"github.com/conn-castle/whisper-provision/internal/fsutil"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/service"
)

const (
	// MinFreeDisk is the space a full install with accelerator wheels needs.
	MinFreeDisk uint64 = 15 << 30
	// MinMemory is enough to load the smaller transcription models.
	MinMemory uint64 = 4 << 30
)

// Detector produces the capability profile.
type Detector interface {
	Detect(ctx context.Context) (capability.Profile, error)
}

// Resources reports host capacity. Tests substitute it.
type Resources interface {
	DiskFree(ctx context.Context, path string) (uint64, error)
	MemoryTotal(ctx context.Context) (uint64, error)
}

// RealResources reads capacity through gopsutil.
type RealResources struct{}

// DiskFree returns the free bytes on the filesystem holding path.
func (RealResources) DiskFree(ctx context.Context, path string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// MemoryTotal returns the installed memory in bytes.
func (RealResources) MemoryTotal(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// CheckCapabilities runs detection and reports the host profile and the install path
// it selects.
func CheckCapabilities(ctx context.Context, d Detector) []Result {
	profile, err := d.Detect(ctx)
	if err != nil {
		rec := messages.DoctorCapabilityRecommend
		switch {
		case errors.Is(err, capability.ErrUnsupportedInterpreter):
			rec = messages.DoctorInterpreterRecommend
		case errors.Is(err, capability.ErrBrokenDriver):
			rec = messages.DoctorDriverRecommend
		}
		return []Result{{
			Status:         StatusFail,
			CheckName:      messages.DoctorCheckNameCapabilities,
			Message:        err.Error(),
			Recommendation: rec,
		}}
	}
	platform := string(profile.OS)
	if profile.Platform != "" {
		platform = profile.Platform
	}
	results := []Result{
		{
			Status:    StatusOK,
			CheckName: messages.DoctorCheckNameCapabilities,
			Message:   fmt.Sprintf(messages.DoctorPlatformFmt, platform, profile.Arch),
		},
		{
			Status:    StatusOK,
			CheckName: messages.DoctorCheckNameInterpreter,
			Message:   fmt.Sprintf(messages.DoctorInterpreterFmt, profile.Interpreter, profile.InterpreterPath),
		},
	}
	accel := Result{
		Status:    StatusOK,
		CheckName: messages.DoctorCheckNameAccelerator,
		Message:   fmt.Sprintf(messages.DoctorAcceleratorFmt, profile.Accelerator, profile.InstallPath()),
	}
	if profile.DriverPresent && !profile.HasAccelerator() {
		accel.Status = StatusWarn
		accel.Recommendation = messages.DoctorAcceleratorTooOldRecommend
	}
	return append(results, accel)
}

// CheckTools reports every tool the session needs and whether the bin dir is writable.
func CheckTools(s *config.Session, sys config.PreconditionSystem) []Result {
	var results []Result
	for _, tool := range config.RequiredTools(s) {
		path, err := sys.LookPath(tool)
		if err != nil {
			results = append(results, Result{
				Status:         StatusFail,
				CheckName:      messages.DoctorCheckNameTools,
				Message:        fmt.Sprintf(messages.DoctorToolMissingFmt, tool),
				Recommendation: fmt.Sprintf(messages.DoctorToolMissingRecommendFmt, tool),
			})
			continue
		}
		results = append(results, Result{
			Status:    StatusOK,
			CheckName: messages.DoctorCheckNameTools,
			Message:   fmt.Sprintf(messages.DoctorToolFoundFmt, tool, path),
		})
	}
	if err := sys.Writable(s.BinDir()); err != nil {
		results = append(results, Result{
			Status:         StatusFail,
			CheckName:      messages.DoctorCheckNameTools,
			Message:        fmt.Sprintf(messages.DoctorBinDirNotWritableFmt, s.BinDir(), err),
			Recommendation: messages.DoctorBinDirRecommend,
		})
	}
	return results
}

// CheckResources warns when free disk or installed memory is below what an install needs.
func CheckResources(ctx context.Context, s *config.Session, res Resources) []Result {
	var results []Result
	dir := s.SourceDir()
	free, err := res.DiskFree(ctx, dir)
	switch {
	case err != nil:
		results = append(results, Result{Status: StatusWarn, CheckName: messages.DoctorCheckNameResources, Message: fmt.Sprintf(messages.DoctorDiskUnknownFmt, dir, err)})
	case free < MinFreeDisk:
		results = append(results, Result{
			Status:         StatusWarn,
			CheckName:      messages.DoctorCheckNameResources,
			Message:        fmt.Sprintf(messages.DoctorDiskLowFmt, humanize.IBytes(free), dir),
			Recommendation: fmt.Sprintf(messages.DoctorDiskLowRecommendFmt, humanize.IBytes(MinFreeDisk)),
		})
	default:
		results = append(results, Result{Status: StatusOK, CheckName: messages.DoctorCheckNameResources, Message: fmt.Sprintf(messages.DoctorDiskOKFmt, humanize.IBytes(free))})
	}

	total, err := res.MemoryTotal(ctx)
	switch {
	case err != nil:
		results = append(results, Result{Status: StatusWarn, CheckName: messages.DoctorCheckNameResources, Message: fmt.Sprintf(messages.DoctorMemoryUnknownFmt, err)})
	case total < MinMemory:
		results = append(results, Result{
			Status:         StatusWarn,
			CheckName:      messages.DoctorCheckNameResources,
			Message:        fmt.Sprintf(messages.DoctorMemoryLowFmt, humanize.IBytes(total)),
			Recommendation: messages.DoctorMemoryLowRecommend,
		})
	default:
		results = append(results, Result{Status: StatusOK, CheckName: messages.DoctorCheckNameResources, Message: fmt.Sprintf(messages.DoctorMemoryOKFmt, humanize.IBytes(total))})
	}
	return results
}

// CheckInstallation reports the artifacts a previous install left: the runtime
// environment, the system-wide wrapper and the supervised service. Missing pieces
// are warnings, since doctor also runs before the first install.
func CheckInstallation(ctx context.Context, s *config.Session, env envmgr.Manager, sup service.Supervisor) []Result {
	var results []Result
	if env != nil {
		exists, err := env.Exists(ctx)
		switch {
		case err != nil:
			results = append(results, Result{Status: StatusWarn, CheckName: messages.DoctorCheckNameInstall, Message: fmt.Sprintf(messages.DoctorEnvUnknownFmt, env.Location(), err)})
		case exists:
			results = append(results, Result{Status: StatusOK, CheckName: messages.DoctorCheckNameInstall, Message: fmt.Sprintf(messages.DoctorEnvPresentFmt, env.Kind(), env.Location())})
		default:
			results = append(results, Result{Status: StatusWarn, CheckName: messages.DoctorCheckNameInstall, Message: fmt.Sprintf(messages.DoctorEnvMissingFmt, env.Kind(), env.Location()), Recommendation: messages.DoctorRunInstallRecommend})
		}
	}

	wrapper := filepath.Join(s.BinDir(), s.CommandName())
	if ok, _ := fsutil.Exists(wrapper); ok {
		results = append(results, Result{Status: StatusOK, CheckName: messages.DoctorCheckNameInstall, Message: fmt.Sprintf(messages.DoctorWrapperPresentFmt, wrapper)})
	} else {
		results = append(results, Result{Status: StatusWarn, CheckName: messages.DoctorCheckNameInstall, Message: fmt.Sprintf(messages.DoctorWrapperMissingFmt, wrapper), Recommendation: messages.DoctorRunInstallRecommend})
	}

	if sup != nil {
		info, err := sup.Lookup(ctx, s.ServiceName())
		switch {
		case err != nil:
			results = append(results, Result{Status: StatusWarn, CheckName: messages.DoctorCheckNameService, Message: err.Error()})
		case info == nil:
			results = append(results, Result{Status: StatusWarn, CheckName: messages.DoctorCheckNameService, Message: fmt.Sprintf(messages.DoctorServiceMissingFmt, s.ServiceName()), Recommendation: messages.DoctorRunInstallRecommend})
		default:
			results = append(results, Result{Status: StatusOK, CheckName: messages.DoctorCheckNameService, Message: fmt.Sprintf(messages.DoctorServiceRunningFmt, info.Name, info.PID, info.Status)})
		}
	}
	return results
}
