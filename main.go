package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bitrise-io/bitrise/models"
	"github.com/bitrise-io/go-steputils/stepconf"
	"github.com/bitrise-io/go-steputils/tools"
	"github.com/bitrise-io/go-utils/fileutil"
	"github.com/bitrise-io/go-utils/log"
	"github.com/bitrise-io/go-utils/pathutil"
	"github.com/bitrise-io/go-utils/v2/env"
	fileutilv2 "github.com/bitrise-io/go-utils/v2/fileutil"
	logv2 "github.com/bitrise-io/go-utils/v2/log"
	pathutilv2 "github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bitrise-steplib/steps-tap-consumer/inputs"
	"github.com/bitrise-steplib/steps-tap-consumer/redactor"
	"github.com/bitrise-steplib/steps-tap-consumer/tap"
	"github.com/bitrise-steplib/steps-tap-consumer/test"
	"github.com/bitrise-steplib/steps-tap-consumer/test/converters"
)

const (
	stepID             = "tap-consumer"
	defaultConcurrency = 4

	testResultEnvKey   = "TAP_TEST_RESULT"
	passedCountEnvKey  = "TAP_PASSED_COUNT"
	failedCountEnvKey  = "TAP_FAILED_COUNT"
	skippedCountEnvKey = "TAP_SKIPPED_COUNT"
	todoCountEnvKey    = "TAP_TODO_COUNT"
	bonusCountEnvKey   = "TAP_BONUS_COUNT"
	summaryEnvKey      = "TAP_SUMMARY"

	resultSuccess = "success"
	resultFailed  = "failed"
)

// Config ...
type Config struct {
	TAPPath           string          `env:"tap_path,required"`
	Strict            bool            `env:"strict,opt[true,false]"`
	Concurrency       int             `env:"concurrency"`
	ShowPassed        bool            `env:"show_passed,opt[true,false]"`
	ShowAll           bool            `env:"show_all,opt[true,false]"`
	FailOnTestFailure bool            `env:"fail_on_test_failure,opt[true,false]"`
	TAPOutputPath     string          `env:"tap_output_path"`
	JUnitOutputPath   string          `env:"junit_output_path"`
	RedactOutputs     bool            `env:"redact_outputs,opt[true,false]"`
	TestResultDir     string          `env:"BITRISE_TEST_RESULT_DIR"`
	AddonAPIBaseURL   string          `env:"addon_api_base_url"`
	AddonAPIToken     stepconf.Secret `env:"addon_api_token"`
	AppSlug           string          `env:"BITRISE_APP_SLUG"`
	BuildSlug         string          `env:"BITRISE_BUILD_SLUG"`
	DebugMode         bool            `env:"debug_mode,opt[true,false]"`
}

func fail(format string, v ...interface{}) {
	log.Errorf(format, v...)
	os.Exit(1)
}

func main() {
	var config Config
	if err := stepconf.Parse(&config); err != nil {
		fail("Issue with input: %s", err)
	}

	stepconf.Print(config)
	fmt.Println()
	log.SetEnableDebugLog(config.DebugMode)

	logger := logv2.NewLogger()
	logger.EnableDebugLog(config.DebugMode)
	envRepository := env.NewRepository()

	paths, err := collectInputPaths(config.TAPPath, envRepository)
	if err != nil {
		fail("%s", err)
	}

	log.Infof("Parsing test results")
	for _, pth := range paths {
		log.Printf("- %s", pth)
	}

	concurrency := config.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	results, err := test.CollectResults(paths, test.CollectOptions{
		Strict:      config.Strict,
		Concurrency: concurrency,
		StepInfo:    models.TestResultStepInfo{ID: stepID},
	}, logger)
	if err != nil {
		fail("%s", err)
	}

	fmt.Println()
	summary := summaryText(results, config.ShowPassed, config.ShowAll)
	log.Printf("%s", summary)

	totals := results.Totals()
	for _, warning := range parseWarnings(results) {
		log.Warnf("%s", warning)
	}

	writtenFiles, err := writeOutputs(config, results)
	if err != nil {
		fail("%s", err)
	}

	if config.RedactOutputs && len(writtenFiles) > 0 {
		secrets := redactor.SecretValues(envRepository)
		log.Debugf("Redacting %d secret(s) from %d output file(s)", len(secrets), len(writtenFiles))
		if err := redactor.NewFileRedactor(fileutilv2.NewFileManager(), logger).RedactFiles(writtenFiles, secrets); err != nil {
			fail("%s", err)
		}
	}

	if config.TestResultDir != "" {
		fmt.Println()
		log.Infof("Exporting test results")

		dirs, err := results.ExportToTestResultDir(config.TestResultDir, fileutilv2.NewFileManager(), logger)
		if err != nil {
			log.Warnf("Failed to export test results: %s", err)
		} else {
			log.Donef("- exported (%d) test results to %s", len(dirs), config.TestResultDir)
		}
	}

	deployTestResults(config, results, logger)

	fmt.Println()
	for key, value := range outputEnvs(totals, summary) {
		if err := tools.ExportEnvironmentWithEnvman(key, value); err != nil {
			fail("Failed to export %s, error: %s", key, err)
		}
		log.Debugf("%s: %s", key, value)
	}
	log.Printf("The test outcome is available in the Environment Variables: %s", strings.Join(outputEnvKeys(), ", "))

	fmt.Println()
	if !totals.SuitePassed() {
		if config.FailOnTestFailure {
			fail("Test suite failed: %s", totals)
		}
		log.Warnf("Test suite failed: %s", totals)
		return
	}
	log.Donef("Test suite passed: %s", totals)
}

func collectInputPaths(tapPath string, envRepository env.Repository) ([]string, error) {
	pathProcessor := inputs.NewPathProcessor(envRepository, pathutilv2.NewPathModifier(), pathutilv2.NewPathChecker(), converters.SupportedExtensions())
	paths, err := pathProcessor.ProcessInputPaths(tapPath)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no test results listed in tap_path")
	}

	if !inputs.HasStdin(paths) {
		return paths, nil
	}

	tmpDir, err := pathutil.NormalizedOSTempDirPath("__tap-consumer__")
	if err != nil {
		return nil, fmt.Errorf("failed to create tmp dir, error: %s", err)
	}
	stdinPath, err := inputs.SaveStdin(os.Stdin, tmpDir)
	if err != nil {
		return nil, err
	}
	return inputs.ReplaceStdin(paths, stdinPath), nil
}

func summaryText(results test.Results, showPassed, showAll bool) string {
	var sections []string
	for _, result := range results {
		sections = append(sections, fmt.Sprintf("%s:\n%s", result.Name, result.Summary.Text(showPassed, showAll)))
	}
	sections = append(sections, results.Totals().String())
	return strings.Join(sections, "\n\n")
}

func parseWarnings(results test.Results) []string {
	var warnings []string
	for _, result := range results {
		for _, warning := range result.Document.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s:%d: %s", result.Name, warning.Line, warning.Msg))
		}
	}
	return warnings
}

func writeOutputs(config Config, results test.Results) ([]string, error) {
	var written []string

	if config.TAPOutputPath != "" {
		data, err := tap.Marshal(results.TAP())
		if err != nil {
			return nil, fmt.Errorf("failed to serialize TAP output: %s", err)
		}
		if err := writeOutput(config.TAPOutputPath, data); err != nil {
			return nil, err
		}
		log.Donef("TAP output written to %s", config.TAPOutputPath)
		written = append(written, config.TAPOutputPath)
	}

	if config.JUnitOutputPath != "" {
		data, err := results.JUnit().Marshal()
		if err != nil {
			return nil, fmt.Errorf("failed to serialize JUnit output: %s", err)
		}
		if err := writeOutput(config.JUnitOutputPath, data); err != nil {
			return nil, err
		}
		log.Donef("JUnit output written to %s", config.JUnitOutputPath)
		written = append(written, config.JUnitOutputPath)
	}

	return written, nil
}

func writeOutput(pth string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(pth), 0755); err != nil {
		return fmt.Errorf("failed to create output dir for %s, error: %s", pth, err)
	}
	if err := fileutil.WriteBytesToFile(pth, data); err != nil {
		return fmt.Errorf("failed to write %s, error: %s", pth, err)
	}
	return nil
}

func outputEnvs(totals tap.Totals, summary string) map[string]string {
	result := resultSuccess
	if !totals.SuitePassed() {
		result = resultFailed
	}
	return map[string]string{
		testResultEnvKey:   result,
		passedCountEnvKey:  strconv.Itoa(totals.Passed),
		failedCountEnvKey:  strconv.Itoa(totals.Failed),
		skippedCountEnvKey: strconv.Itoa(totals.Skipped),
		todoCountEnvKey:    strconv.Itoa(totals.Todo),
		bonusCountEnvKey:   strconv.Itoa(totals.Bonus),
		summaryEnvKey:      summary,
	}
}

func outputEnvKeys() []string {
	var keys []string
	for key := range outputEnvs(tap.Totals{}, "") {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func deployTestResults(config Config, results test.Results, logger logv2.Logger) {
	if config.AddonAPIToken == "" {
		return
	}
	if config.AddonAPIBaseURL == "" || config.AppSlug == "" || config.BuildSlug == "" {
		log.Warnf("Skipping test result upload: addon_api_base_url, BITRISE_APP_SLUG and BITRISE_BUILD_SLUG are required")
		return
	}

	fmt.Println()
	log.Infof("Upload test results")
	log.Printf("- uploading (%d) test results", len(results))

	if err := results.Upload(string(config.AddonAPIToken), config.AddonAPIBaseURL, config.AppSlug, config.BuildSlug, logger); err != nil {
		log.Warnf("Failed to upload test results: %s", err)
	} else {
		log.Donef("Success")
	}
}
