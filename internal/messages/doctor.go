package messages

// Doctor messages for the doctor command.
const (
	// DoctorUse is the doctor command name.
	DoctorUse   = "doctor"
	DoctorShort = "Check whether this host can run, or already runs, the transcription toolchain"

	DoctorHealthCheckFmt = "🏥 Checking provisioning health for %s...\n"

	DoctorCheckNameCapabilities = "Capabilities"
	DoctorCheckNameInterpreter  = "Interpreter"
	DoctorCheckNameAccelerator  = "Accelerator"
	DoctorCheckNameTools        = "Tools"
	DoctorCheckNameResources    = "Resources"
	DoctorCheckNameInstall      = "Install"
	DoctorCheckNameService      = "Service"

	DoctorCapabilityRecommend        = "Run on Linux or macOS with a supported Python interpreter."
	DoctorInterpreterRecommend       = "Install Python 3.9 to 3.12, or point --interpreter at one."
	DoctorDriverRecommend            = "nvidia-smi is installed but failing; repair or reinstall the NVIDIA driver, or remove it to install the CPU build."
	DoctorAcceleratorTooOldRecommend = "A GPU driver is present but no CUDA 11 or 12 toolkit was found; the CPU build will be installed. Install a CUDA toolkit to use the GPU."
	DoctorBinDirRecommend            = "Re-run with sudo, or choose a writable directory with --bin-dir."
	DoctorMemoryLowRecommend         = "Use the tiny or base models, or add memory before transcribing long audio."
	DoctorRunInstallRecommend        = "Run `whisper-provision` to install."
	DoctorToolMissingRecommendFmt    = "Install %s and make sure it is on PATH."
	DoctorDiskLowRecommendFmt        = "Free up space; a full install with GPU wheels needs about %s."

	DoctorPlatformFmt          = "Platform %s (%s)"
	DoctorInterpreterFmt       = "Python %s at %s"
	DoctorAcceleratorFmt       = "Accelerator %s, install path %s"
	DoctorToolMissingFmt       = "%s not found on PATH"
	DoctorToolFoundFmt         = "%s found at %s"
	DoctorBinDirNotWritableFmt = "Bin directory %s is not writable: %v"
	DoctorDiskUnknownFmt       = "Could not read free disk space for %s: %v"
	DoctorDiskLowFmt           = "Only %s free on the filesystem holding %s"
	DoctorDiskOKFmt            = "%s free disk space"
	DoctorMemoryUnknownFmt     = "Could not read installed memory: %v"
	DoctorMemoryLowFmt         = "Only %s of memory installed"
	DoctorMemoryOKFmt          = "%s of memory installed"
	DoctorEnvUnknownFmt        = "Could not inspect environment %s: %v"
	DoctorEnvPresentFmt        = "%s environment present at %s"
	DoctorEnvMissingFmt        = "%s environment missing at %s"
	DoctorWrapperPresentFmt    = "Wrapper installed at %s"
	DoctorWrapperMissingFmt    = "Wrapper missing at %s"
	DoctorServiceMissingFmt    = "Service %s is not registered with pm2"
	DoctorServiceRunningFmt    = "Service %s (pid %d) is %s"

	DoctorStatusOKLabel        = "[OK]  "
	DoctorStatusWarnLabel      = "[WARN]"
	DoctorStatusFailLabel      = "[FAIL]"
	DoctorResultLineFmt        = "%s %-12s %s\n"
	DoctorRecommendationPrefix = "       💡 "

	DoctorFailureSummary = "❌ Some checks failed. Fix the issues above before installing."
	DoctorSuccessSummary = "✅ All required checks passed."
)
