package video_relay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/alanbriolat/video-relay/convert"
	"github.com/alanbriolat/video-relay/deliver"
	"github.com/alanbriolat/video-relay/pipeline"
)

const DefaultTargetFileTemplateText = "{{.Title}} [{{.ID}}].{{.Ext}}"

var DefaultTargetFileTemplate = template.Must(template.New("target_file").Parse(DefaultTargetFileTemplateText))

// Config is the application configuration, usually loaded from a YAML file with LoadConfig.
type Config struct {
	SizeBudgetBytes    int64                  `yaml:"sizeBudgetBytes"`
	VideoScaleFactor   float64                `yaml:"videoScaleFactor"`
	MaxConvertAttempts int                    `yaml:"maxConvertAttempts"`
	AudioBitrate       string                 `yaml:"audioBitrate"`
	WorkDir            string                 `yaml:"workDir"`
	SaveDir            string                 `yaml:"saveDir"`
	TargetFileTemplate string                 `yaml:"targetFileTemplate"`
	FFmpegPath         string                 `yaml:"ffmpegPath"`
	FFprobePath        string                 `yaml:"ffprobePath"`
	Telegram           deliver.TelegramConfig `yaml:"telegram"`
	S3                 deliver.S3Config       `yaml:"s3"`
	HistoryPath        string                 `yaml:"historyPath"`
}

func DefaultConfig() Config {
	return Config{
		SizeBudgetBytes:    pipeline.DefaultSizeBudgetBytes,
		VideoScaleFactor:   convert.DefaultVideoScaleFactor,
		MaxConvertAttempts: pipeline.MaxConvertAttempts,
		AudioBitrate:       convert.DefaultAudioBitrate,
		WorkDir:            os.TempDir(),
		SaveDir:            ".",
		TargetFileTemplate: DefaultTargetFileTemplateText,
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		HistoryPath:        defaultHistoryPath(),
	}
}

func defaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "video-relay.db"
	}
	return filepath.Join(dir, "video-relay", "history.db")
}

// LoadConfig reads a YAML config file over DefaultConfig. Unknown keys are an error.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config file %v: %w", path, err)
	}
	return config, nil
}

// Validate checks every option, reporting all problems at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if err := c.PipelineConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.ConvertConfig().Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if _, err := c.FileTemplate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.S3.MaxObjectSize < 0 {
		result = multierror.Append(result, fmt.Errorf("s3.maxObjectSize must not be negative"))
	}
	return result.ErrorOrNil()
}

func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		SizeBudgetBytes:    c.SizeBudgetBytes,
		MaxConvertAttempts: c.MaxConvertAttempts,
		WorkDir:            c.WorkDir,
		SaveDir:            c.SaveDir,
	}
}

func (c *Config) ConvertConfig() convert.Config {
	return convert.Config{
		FFmpegPath:       c.FFmpegPath,
		FFprobePath:      c.FFprobePath,
		VideoScaleFactor: c.VideoScaleFactor,
		AudioBitrate:     c.AudioBitrate,
	}
}

// FileTemplate parses TargetFileTemplate, which is rendered with a SourceInfo.
func (c *Config) FileTemplate() (*template.Template, error) {
	if c.TargetFileTemplate == "" {
		return DefaultTargetFileTemplate, nil
	}
	t, err := template.New("target_file").Option("missingkey=error").Parse(c.TargetFileTemplate)
	if err != nil {
		return nil, fmt.Errorf("invalid targetFileTemplate: %w", err)
	}
	if err := t.Execute(io.Discard, &SourceInfo{ID: "id", Title: "title", Ext: "ext"}); err != nil {
		return nil, fmt.Errorf("invalid targetFileTemplate: %w", err)
	}
	return t, nil
}
