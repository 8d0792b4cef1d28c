package command

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/pixil98/go-errors"

	"aiquest/internal/narrator"
)

type NarratorConfig struct {
	BaseURL          string  `json:"base_url"`
	Model            string  `json:"model"`
	MaxTokens        int     `json:"max_tokens"`
	Temperature      float32 `json:"temperature"`
	TopP             float32 `json:"top_p"`
	FrequencyPenalty float32 `json:"frequency_penalty"`
	DebugDir         string  `json:"debug_dir,omitempty"`
}

// narratorEnv holds the secrets that stay out of the config file. The key
// is read from AIQUEST_NARRATOR_API_KEY.
type narratorEnv struct {
	APIKey string `envconfig:"API_KEY" required:"true"`
}

func (c *NarratorConfig) validate() error {
	el := errors.NewErrorList()

	if c.MaxTokens < 0 {
		el.Add(fmt.Errorf("max_tokens must not be negative"))
	}
	if c.Temperature < 0 || c.TopP < 0 {
		el.Add(fmt.Errorf("temperature and top_p must not be negative"))
	}

	return el.Err()
}

func (c *NarratorConfig) BuildClient() (*narrator.Client, error) {
	var env narratorEnv
	if err := envconfig.Process("aiquest_narrator", &env); err != nil {
		return nil, fmt.Errorf("reading narrator environment: %w", err)
	}

	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = "https://api.deepseek.com/v1"
	}
	model := c.Model
	if model == "" {
		model = "deepseek-reasoner"
	}

	var opts []narrator.ClientOpt
	if c.Temperature != 0 {
		opts = append(opts, narrator.WithTemperature(c.Temperature))
	}
	if c.TopP != 0 {
		opts = append(opts, narrator.WithTopP(c.TopP))
	}
	if c.FrequencyPenalty != 0 {
		opts = append(opts, narrator.WithFrequencyPenalty(c.FrequencyPenalty))
	}
	if c.MaxTokens != 0 {
		opts = append(opts, narrator.WithMaxTokens(c.MaxTokens))
	}

	return narrator.NewClient(env.APIKey, baseURL, model, opts...)
}
