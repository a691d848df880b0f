package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/bitrise-io/go-steputils/v2/stepconf"
	"github.com/bitrise-io/go-tusclient/chunkuploader"
	"github.com/bitrise-io/go-tusclient/tus"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/docker/go-units"
)

const (
	uploadURLOutputKey  = "TUS_UPLOAD_URL"
	uploadURLsOutputKey = "TUS_UPLOAD_URLS"
)

// Input is the raw input of the command, read from environment variables.
type Input struct {
	Endpoint          string          `env:"endpoint,required"`
	Paths             []string        `env:"paths,required"`
	UploadURL         string          `env:"upload_url"`
	ChunkSize         string          `env:"chunk_size"`
	ChecksumAlgorithm string          `env:"checksum_algorithm"`
	Metadata          []string        `env:"metadata"`
	Headers           []string        `env:"headers"`
	AuthToken         stepconf.Secret `env:"auth_token"`
	MaxResumes        int             `env:"max_resumes"`
	Verbose           bool            `env:"verbose"`
}

// Config is the processed input of the command.
type Config struct {
	Endpoint  string
	Paths     []string
	UploadURL string
	Metadata  tus.Metadata
	Client    tus.Config
}

// UploadedFile is one file that made it to the server.
type UploadedFile struct {
	Path string
	URL  string
	Size int64
}

// Result is the outcome of Run.
type Result struct {
	Uploads []UploadedFile
}

type outputExporter interface {
	ExportOutput(key, value string) error
}

type uploadStep struct {
	envRepo      env.Repository
	logger       log.Logger
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	exporter     outputExporter
}

func newUploadStep(
	envRepo env.Repository,
	logger log.Logger,
	pathModifier pathutil.PathModifier,
	pathChecker pathutil.PathChecker,
	exporter outputExporter,
) uploadStep {
	return uploadStep{
		envRepo:      envRepo,
		logger:       logger,
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
		exporter:     exporter,
	}
}

// ProcessConfig parses and validates the inputs.
func (s uploadStep) ProcessConfig() (Config, error) {
	var input Input
	if err := stepconf.NewInputParser(s.envRepo).Parse(&input); err != nil {
		return Config{}, err
	}
	s.logger.EnableDebugLog(input.Verbose)

	paths, err := s.evaluatePaths(input.Paths)
	if err != nil {
		return Config{}, err
	}
	if input.UploadURL != "" && len(paths) > 1 {
		return Config{}, fmt.Errorf("upload_url resumes a single upload, but %d files matched", len(paths))
	}

	clientConfig := tus.DefaultConfig()
	if input.ChunkSize != "" {
		size, err := units.RAMInBytes(input.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("invalid chunk_size %q: %w", input.ChunkSize, err)
		}
		clientConfig.Uploader.ChunkSize = size
	}
	if input.ChecksumAlgorithm != "" {
		clientConfig.Uploader.ChecksumAlgorithm = chunkuploader.ChecksumAlgorithm(strings.ToLower(input.ChecksumAlgorithm))
	}
	clientConfig.Uploader.MaxResumes = input.MaxResumes
	if err := clientConfig.Uploader.Validate(); err != nil {
		return Config{}, err
	}

	header, err := parseHeaders(input.Headers)
	if err != nil {
		return Config{}, err
	}
	if input.AuthToken != "" {
		header.Set("Authorization", "Bearer "+string(input.AuthToken))
	}
	clientConfig.Header = header

	metadata, err := parseMetadata(input.Metadata)
	if err != nil {
		return Config{}, err
	}

	s.logger.Println()
	s.logger.Infof("Config:")
	s.logger.Printf("- Endpoint: %s", input.Endpoint)
	s.logger.Printf("- Files: %d", len(paths))
	s.logger.Printf("- Chunk size: %s", units.HumanSizeWithPrecision(float64(clientConfig.Uploader.ChunkSize), 3))
	s.logger.Printf("- Checksum: %s", clientConfig.Uploader.ChecksumAlgorithm)
	s.logger.Printf("- Auth token: %s", input.AuthToken)

	return Config{
		Endpoint:  input.Endpoint,
		Paths:     paths,
		UploadURL: input.UploadURL,
		Metadata:  metadata,
		Client:    clientConfig,
	}, nil
}

// Run creates one upload per file and sends the file contents.
func (s uploadStep) Run(ctx context.Context, config Config) (Result, error) {
	client, err := tus.New(config.Client, s.logger)
	if err != nil {
		return Result{}, err
	}
	defer client.CloseIdleConnections()

	maxSize := s.checkServer(ctx, client, config)

	var result Result
	for _, path := range config.Paths {
		info, err := os.Stat(path)
		if err != nil {
			return result, err
		}
		if maxSize > 0 && info.Size() > maxSize {
			return result, fmt.Errorf("%s is %s, the server accepts at most %s", path,
				units.HumanSizeWithPrecision(float64(info.Size()), 3), units.HumanSizeWithPrecision(float64(maxSize), 3))
		}

		s.logger.Println()
		s.logger.Infof("Uploading %s (%s)", path, units.HumanSizeWithPrecision(float64(info.Size()), 3))

		uploadURL := config.UploadURL
		if uploadURL == "" {
			uploadURL, err = client.CreateFromFile(ctx, config.Endpoint, path, config.Metadata)
			if err != nil {
				return result, fmt.Errorf("create upload for %s: %w", path, err)
			}
			s.logger.Printf("Created upload: %s", uploadURL)
		} else {
			s.logger.Printf("Resuming upload: %s", uploadURL)
		}

		progress := &progressLogger{logger: s.logger}
		if _, err := client.UploadFile(ctx, uploadURL, path, progress.log); err != nil {
			return result, fmt.Errorf("upload %s: %w", path, err)
		}
		s.logger.Donef("Uploaded %s", path)

		result.Uploads = append(result.Uploads, UploadedFile{Path: path, URL: uploadURL, Size: info.Size()})
	}

	return result, nil
}

// checkServer fetches the server capabilities and returns its maximum upload size, 0 if unknown.
func (s uploadStep) checkServer(ctx context.Context, client *tus.Client, config Config) int64 {
	info, err := client.ServerInfo(ctx, config.Endpoint)
	if err != nil {
		s.logger.Warnf("Failed to query server capabilities: %s", err)
		return 0
	}

	s.logger.Debugf("Server version: %s, extensions: %s", info.Version, strings.Join(info.Extensions, ","))
	algorithm := string(config.Client.Uploader.ChecksumAlgorithm)
	if len(info.ChecksumAlgorithms) > 0 && !info.SupportsChecksum(algorithm) {
		s.logger.Warnf("Server does not announce %s checksums, supported: %s", algorithm, strings.Join(info.ChecksumAlgorithms, ","))
	}
	return info.MaxSize
}

// Export exposes the upload URLs as outputs.
func (s uploadStep) Export(result Result) error {
	if len(result.Uploads) == 0 {
		return nil
	}

	var urls []string
	for _, upload := range result.Uploads {
		urls = append(urls, upload.URL)
	}

	s.logger.Println()
	if err := s.exporter.ExportOutput(uploadURLOutputKey, urls[len(urls)-1]); err != nil {
		return err
	}
	s.logger.Donef("Exported %s", uploadURLOutputKey)

	if err := s.exporter.ExportOutput(uploadURLsOutputKey, strings.Join(urls, "|")); err != nil {
		return err
	}
	s.logger.Donef("Exported %s", uploadURLsOutputKey)

	return nil
}

// parseHeaders parses "Name: value" items.
func parseHeaders(items []string) (http.Header, error) {
	header := http.Header{}
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		name, value, ok := strings.Cut(item, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected Name: value", item)
		}
		header.Add(name, strings.TrimSpace(value))
	}
	return header, nil
}

// parseMetadata parses "key=value" items.
func parseMetadata(items []string) (tus.Metadata, error) {
	metadata := tus.Metadata{}
	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", item)
		}
		metadata[key] = value
	}
	return metadata, nil
}

// progressLogger prints the progress of an upload at every tenth.
type progressLogger struct {
	logger log.Logger
	step   int64
}

func (p *progressLogger) log(offset, total int64) {
	if total <= 0 {
		return
	}
	step := offset * 10 / total
	if step <= p.step {
		return
	}
	p.step = step
	p.logger.Printf("%d%% (%s / %s)", step*10,
		units.HumanSizeWithPrecision(float64(offset), 3), units.HumanSizeWithPrecision(float64(total), 3))
}
