package messages

// Stage and step names shown in progress output and the summary.
const (
	StageDetectHeader  = "==> Detecting host capabilities"
	StageCLIHeader     = "==> Installing the transcription CLI"
	StageServiceHeader = "==> Installing the HTTP service"

	DetectProfileFmt = "    os %s, python %s, accelerator %s, install path %s\n"

	StepCreateEnv            = "create Python environment"
	StepUpgradePip           = "upgrade pip"
	StepInstallDeps          = "install dependencies"
	StepStoreToken           = "store Hugging Face token"
	StepGenerateWrapper      = "generate wrapper"
	StepInstallWrapper       = "install wrapper"
	StepWriteState           = "record install state"
	StepSmokeVersion         = "smoke test: version"
	StepSmokeTranscribe      = "smoke test: transcription"
	StepEnsureSupervisor     = "install pm2"
	StepServiceModules       = "install service modules"
	StepUploadDir            = "create upload directory"
	StepServiceEnv           = "write service environment"
	StepGenerateUpdateScript = "generate update script"
	StepInstallUpdateScript  = "install update script"
	StepStartService         = "start service"
	StepPersistSupervisor    = "persist pm2 process list"
	StepStartTunnel          = "start tunnel"
	StepProbeService         = "probe service health"
)

// Step runner output.
const (
	StepStatusOK      = "[ok]"
	StepStatusSkipped = "[skip]"
	StepStatusWarn    = "[warn]"
	StepStatusFail    = "[fail]"

	StepStartFmt           = "--> %s\n"
	StepSkippedFmt         = "%s %s (already done)\n"
	StepDoneFmt            = "%s %s\n"
	StepFailedFmt          = "%s %s: %v\n"
	StepOutputTailFmt      = "    last output:\n%s\n"
	StepForceUndoFailedFmt = "undo existing state: %w"
	StepTimedOutFmt        = "timed out after %s: %w"

	SmokeVersionMismatchFmt = "wrapper did not report %q; output ended with:\n%s"
	SmokeSampleMissingFmt   = "sample audio %q not found"
)

// Compensation descriptions recorded for rollback.
const (
	UndoRemoveEnvFmt        = "remove %s environment %s"
	UndoRestoreFileFmt      = "restore %s"
	UndoRemoveExecutableFmt = "remove %s"
	UndoRemoveDirFmt        = "remove %s"
	UndoUninstallGlobalFmt  = "npm uninstall -g %s"

	RollbackNothingToUndo  = "Nothing to roll back."
	RollbackStartFmt       = "Rolling back %d completed step(s):\n"
	RollbackEntryFmt       = "  undo: %s\n"
	RollbackEntryFailedFmt = "  undo failed: %s: %v\n"
	RollbackIncompleteFmt  = "Rollback incomplete: %d compensation(s) failed; see the session log.\n"
	RollbackComplete       = "Rollback complete."
)

// Orchestrator messages.
const (
	OrchestratorIllegalTransitionFmt = "illegal provisioning transition %s -> %s"
	OrchestratorInterruptedBeforeFmt = "%w before %s"
	OrchestratorInterruptedDuringFmt = "%w during %s"
	OrchestratorCriticalStepFmt      = "%w: %s: %w"
	OrchestratorAbortingFmt          = "\nAborting: %v\n"

	StateReadFailedFmt  = "read install state %s: %w"
	StateWriteFailedFmt = "write install state %s: %w"

	SummaryHeader             = "==> Summary"
	SummaryStepsFmt           = "    steps: %d done, %d skipped, %d with warnings\n"
	SummaryInstallPathFmt     = "    install path: %s\n"
	SummaryWrapperFmt         = "    command: %s\n"
	SummaryUpdateScriptFmt    = "    update script: %s\n"
	SummaryServiceFmt         = "    service: %s on port %d (%s)\n"
	SummaryServiceStarted     = "started"
	SummaryServiceUntouched   = "already running, left untouched"
	SummaryTunnelFmt          = "    public URL: %s\n"
	SummaryNoWarnings         = "    no warnings"
	SummaryWarningsFmt        = "    %d warning(s):\n"
	SummaryStepWarningFmt     = "%s: %v"
	SummaryOptionalPackageFmt = "optional package %s was not installed"
)
