package test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bitrise-io/bitrise/models"
	"github.com/bitrise-io/go-utils/v2/fileutil"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/bitrise-steplib/steps-tap-consumer/tap"
	"github.com/bitrise-steplib/steps-tap-consumer/test/converters"
	"github.com/bitrise-steplib/steps-tap-consumer/test/converters/tapfile"
	"github.com/bitrise-steplib/steps-tap-consumer/test/testasset"
	"github.com/bitrise-steplib/steps-tap-consumer/test/testreport"
	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// maxTotalXMLSize limits the total size of all XML files uploaded in a single run
const maxTotalXMLSize = 100 * 1024 * 1024 // 100 MiB

const (
	testInfoFileName   = "test-info.json"
	uploadXMLFileName  = "test_result.xml"
	defaultConcurrency = 1
)

// FileInfo ...
type FileInfo struct {
	FileName string `json:"filename"`
	FileSize int    `json:"filesize"`
}

// UploadURL ...
type UploadURL struct {
	FileName string `json:"filename"`
	URL      string `json:"upload_url"`
}

// UploadRequest ...
type UploadRequest struct {
	Name   string                    `json:"name"`
	Step   models.TestResultStepInfo `json:"step_info"`
	Assets []FileInfo                `json:"assets"`
	FileInfo
}

// UploadResponse ...
type UploadResponse struct {
	ID     string      `json:"id"`
	Assets []UploadURL `json:"assets"`
	UploadURL
}

// CollectOptions ...
type CollectOptions struct {
	Strict      bool
	Concurrency int
	StepInfo    models.TestResultStepInfo
}

// Result is one test result input: its TAP document and the JUnit XML
// report converted from it.
type Result struct {
	Name            string
	Path            string
	Document        *tap.Document
	Summary         tap.Summary
	Report          testreport.TestReport
	XMLContent      []byte
	AttachmentPaths []string
	StepInfo        models.TestResultStepInfo
}

// Results ...
type Results []Result

// CollectResults converts every input file with the first converter that
// detects it. Files no converter detects are read as TAP. At most
// opts.Concurrency files are processed at the same time; the results keep
// the order of the paths.
func CollectResults(paths []string, opts CollectOptions, logger log.Logger) (Results, error) {
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}

	results := make(Results, len(paths))
	errs := make([]error, len(paths))

	var wg sync.WaitGroup
	jobs := make(chan bool, concurrency)

	for i, pth := range paths {
		wg.Add(1)

		go func(i int, pth string) {
			defer wg.Done()
			defer func() {
				<-jobs
			}()

			jobs <- true

			logger.Debugf("Processing %s", pth)
			results[i], errs[i] = collectResult(pth, opts, logger)
		}(i, pth)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to process test result (%s): %w", paths[i], err)
		}
	}
	return results, nil
}

func collectResult(pth string, opts CollectOptions, logger log.Logger) (Result, error) {
	var converter converters.Intf
	for _, c := range converters.List(logger) {
		c.Setup(opts.Strict)
		if c.Detect([]string{pth}) {
			logger.Debugf("%s detected by %T", pth, c)
			converter = c
			break
		}
	}
	if converter == nil {
		logger.Warnf("Unknown test result type (%s), reading it as TAP", pth)
		converter = converters.Fallback([]string{pth}, logger)
		converter.Setup(opts.Strict)
	}

	report, err := converter.Convert()
	if err != nil {
		return Result{}, err
	}

	docs := converters.Documents(converter, report)
	if len(docs) != 1 {
		return Result{}, fmt.Errorf("expected one document, got %d", len(docs))
	}

	xmlData, err := report.Marshal()
	if err != nil {
		return Result{}, err
	}

	attachments, err := testasset.FindAttachments(pth)
	if err != nil {
		logger.Warnf("Failed to look for attachments of %s: %s", pth, err)
	}
	logger.Debugf("found attachments: %d", len(attachments))

	return Result{
		Name:            tapfile.SuiteName(pth),
		Path:            pth,
		Document:        docs[0],
		Summary:         tap.Summarize(docs[0]),
		Report:          report,
		XMLContent:      xmlData,
		AttachmentPaths: attachments,
		StepInfo:        opts.StepInfo,
	}, nil
}

// Totals ...
func (results Results) Totals() tap.Totals {
	var totals tap.Totals
	for _, result := range results {
		totals.Add(result.Summary)
	}
	return totals
}

// JUnit merges the test suites of every result into one report.
func (results Results) JUnit() testreport.TestReport {
	var report testreport.TestReport
	for _, result := range results {
		report.TestSuites = append(report.TestSuites, result.Report.TestSuites...)
	}
	return report
}

// TAP merges the results into one TAP 14 document, each result being a
// subtest. A bail out of a result is kept as a comment so that the other
// results are still written.
func (results Results) TAP() *tap.Document {
	doc := tap.NewDocument()
	for i, result := range results {
		child := withoutBailOut(result.Document)
		child.Version = tap.DefaultVersion
		if child.Plan == nil && len(child.Tests) == 0 {
			child.Plan = &tap.Plan{Count: 0}
		}

		doc.Tests = append(doc.Tests, tap.TestPoint{
			OK:          result.Summary.SuitePassed(),
			Number:      i + 1,
			Description: result.Name,
			Subtest:     &tap.Subtest{Name: result.Name, Document: child},
		})
	}
	doc.Plan = &tap.Plan{Count: len(results)}
	return doc
}

func withoutBailOut(doc *tap.Document) *tap.Document {
	child := *doc
	child.Warnings = nil

	child.Tests = make([]tap.TestPoint, len(doc.Tests))
	for i, tp := range doc.Tests {
		if tp.Subtest != nil && tp.Subtest.Document != nil {
			tp.Subtest = &tap.Subtest{Name: tp.Subtest.Name, Document: withoutBailOut(tp.Subtest.Document)}
		}
		child.Tests[i] = tp
	}

	if doc.Bail != nil {
		child.Comments = append(append([]string{}, doc.Comments...), strings.TrimSpace("Bail out! "+doc.Bail.Reason))
		child.Bail = nil
	}
	return &child
}

/*
ExportToTestResultDir writes every result into its own directory, the layout
test report collectors read:

	test_results ($BITRISE_TEST_RESULT_DIR)
	├── 3f0c...
	│	├── unit.xml
	│	├── unit.log
	│	└── test-info.json
	└── 9b21...
		├── e2e.xml
		└── test-info.json
*/
func (results Results) ExportToTestResultDir(dir string, fileManager fileutil.FileManager, logger log.Logger) ([]string, error) {
	var exportedDirs []string
	for _, result := range results {
		testDir := filepath.Join(dir, uuid.NewString())
		if err := os.MkdirAll(testDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create test result dir: %w", err)
		}

		if err := fileManager.WriteBytes(filepath.Join(testDir, result.Name+".xml"), result.XMLContent); err != nil {
			return nil, fmt.Errorf("failed to write test result xml: %w", err)
		}

		testInfo, err := json.Marshal(struct {
			Name string `json:"test-name"`
		}{Name: result.Name})
		if err != nil {
			return nil, err
		}
		if err := fileManager.WriteBytes(filepath.Join(testDir, testInfoFileName), testInfo); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", testInfoFileName, err)
		}

		for _, attachment := range result.AttachmentPaths {
			if err := copyFile(fileManager, attachment, filepath.Join(testDir, filepath.Base(attachment)), logger); err != nil {
				return nil, fmt.Errorf("failed to export attachment (%s): %w", attachment, err)
			}
		}

		logger.Debugf("Exported %s to %s", result.Name, testDir)
		exportedDirs = append(exportedDirs, testDir)
	}
	return exportedDirs, nil
}

func copyFile(fileManager fileutil.FileManager, src, dst string, logger log.Logger) error {
	source, err := fileManager.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if err := source.Close(); err != nil {
			logger.Warnf("Failed to close file: %s", err)
		}
	}()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(destination, source); err != nil {
		_ = destination.Close()
		return err
	}
	return destination.Close()
}

func httpCall(apiToken, method, url string, input io.Reader, output interface{}, logger log.Logger) error {
	if apiToken != "" {
		url = url + "/" + apiToken
	}
	req, err := retryablehttp.NewRequest(method, url, input)
	if err != nil {
		return err
	}

	client := retryhttp.NewClient(logger)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("Failed to close body: %s", err)
		}
	}()

	if resp.StatusCode < 200 || 299 < resp.StatusCode {
		bodyData, err := io.ReadAll(resp.Body)
		if err != nil {
			logger.Warnf("Failed to read response: %s", err)
			return fmt.Errorf("unsuccessful status code: %d", resp.StatusCode)
		}
		return fmt.Errorf("unsuccessful status code: %d, response: %s", resp.StatusCode, bodyData)
	}

	if output != nil {
		return json.NewDecoder(resp.Body).Decode(&output)
	}
	return nil
}

// Upload sends every result to the test report API: the report descriptor
// is created first, then the XML and the attachments are uploaded to the
// returned URLs and finally the report is marked as uploaded.
func (results Results) Upload(apiToken, endpointBaseURL, appSlug, buildSlug string, logger log.Logger) error {
	if size := results.calculateTotalSizeOfXMLContent(); size > maxTotalXMLSize {
		return fmt.Errorf("the total size of the test result XML files (%s) exceeds the maximum allowed size of %s", units.BytesSize(float64(size)), units.BytesSize(maxTotalXMLSize))
	}

	for _, result := range results {
		logger.Printf("Uploading: %s", result.Name)

		uploadReq := UploadRequest{
			FileInfo: FileInfo{
				FileName: uploadXMLFileName,
				FileSize: len(result.XMLContent),
			},
			Name: result.Name,
			Step: result.StepInfo,
		}
		for _, asset := range result.AttachmentPaths {
			fi, err := os.Stat(asset)
			if err != nil {
				return fmt.Errorf("failed to get file info for %s: %w", asset, err)
			}
			uploadReq.Assets = append(uploadReq.Assets, FileInfo{
				FileName: filepath.Base(asset),
				FileSize: int(fi.Size()),
			})
		}

		uploadRequestBodyData, err := json.Marshal(uploadReq)
		if err != nil {
			return fmt.Errorf("failed to json encode upload request: %w", err)
		}

		var (
			uploadResponse   UploadResponse
			uploadRequestURL = fmt.Sprintf("%s/apps/%s/builds/%s/test_reports", endpointBaseURL, appSlug, buildSlug)
		)
		if err := httpCall(apiToken, http.MethodPost, uploadRequestURL, bytes.NewReader(uploadRequestBodyData), &uploadResponse, logger); err != nil {
			return fmt.Errorf("failed to initialise test result: %w", err)
		}

		if err := httpCall("", http.MethodPut, uploadResponse.URL, bytes.NewReader(result.XMLContent), nil, logger); err != nil {
			return fmt.Errorf("failed to upload test result xml: %w", err)
		}

		for _, upload := range uploadResponse.Assets {
			for _, file := range result.AttachmentPaths {
				if filepath.Base(file) == upload.FileName {
					if err := uploadAttachment(file, upload.URL, logger); err != nil {
						return err
					}
					break
				}
			}
		}

		var uploadPatchURL = fmt.Sprintf("%s/apps/%s/builds/%s/test_reports/%s", endpointBaseURL, appSlug, buildSlug, uploadResponse.ID)
		if err := httpCall(apiToken, http.MethodPatch, uploadPatchURL, strings.NewReader(`{"uploaded":true}`), nil, logger); err != nil {
			return fmt.Errorf("failed to finalise test result: %w", err)
		}
	}

	return nil
}

func uploadAttachment(pth, url string, logger log.Logger) error {
	data, err := os.ReadFile(pth)
	if err != nil {
		return fmt.Errorf("failed to read test result attachment (%s): %w", pth, err)
	}
	if err := httpCall("", http.MethodPut, url, bytes.NewReader(data), nil, logger); err != nil {
		return fmt.Errorf("failed to upload test result attachment (%s): %w", pth, err)
	}
	return nil
}

func (results Results) calculateTotalSizeOfXMLContent() int {
	totalSize := 0
	for _, result := range results {
		totalSize += len(result.XMLContent)
	}
	return totalSize
}
