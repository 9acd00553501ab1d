package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"paper-trades/internal/config"
)

// maxCompletionTokens 限制单次决策的输出长度。
const maxCompletionTokens = 2000

// Client 封装 OpenAI 调用逻辑，并记录唤醒次数。
// Decide 仅由单一决策循环调用，内部计数不加锁。
type Client struct {
	cfg       config.OpenAIConfig
	logger    *zap.Logger
	sdk       *openai.Client
	startedAt time.Time
	decisions int
}

// NewClient 使用给定配置创建决策客户端。
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}

	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:       cfg,
		logger:    logger,
		sdk:       openai.NewClientWithConfig(sdkConfig),
		startedAt: time.Now(),
	}, nil
}

// Decide 根据市场概览与账户状态获取模型决策。
func (c *Client) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	if c.cfg.Model == "" {
		return Decision{}, errors.New("openai model 不能为空")
	}

	c.decisions++
	req.InvocationCount = c.decisions
	if req.CurrentTime.IsZero() {
		req.CurrentTime = time.Now()
	}
	if req.ElapsedMinutes == 0 {
		req.ElapsedMinutes = int(req.CurrentTime.Sub(c.startedAt).Minutes())
	}

	prompt, err := BuildPrompt(req)
	if err != nil {
		return Decision{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	response, err := c.sdk.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   maxCompletionTokens,
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.Error(err))
		return Decision{}, fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return Decision{}, errors.New("OpenAI 返回结果为空")
	}

	rawContent := strings.TrimSpace(response.Choices[0].Message.Content)
	if rawContent == "" {
		return Decision{}, errors.New("OpenAI 返回内容为空")
	}

	decision, err := parseDecision(rawContent)
	if err != nil {
		c.logger.Error("解析模型决策失败",
			zap.Error(err),
			zap.String("raw_content", rawContent),
		)
		return Decision{}, err
	}

	if err := decision.Validate(); err != nil {
		return Decision{}, err
	}

	c.logger.Info("模型决策生成成功",
		zap.String("trigger", req.TriggerReason),
		zap.Int("invocation", req.InvocationCount),
		zap.Int("actions", len(decision.Actions)),
		zap.String("summary", decision.Summary),
	)

	return decision, nil
}

// Decisions 返回已完成的决策次数。
func (c *Client) Decisions() int {
	return c.decisions
}

func parseDecision(content string) (Decision, error) {
	jsonPayload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var decision Decision
	if err = json.Unmarshal(jsonPayload, &decision); err != nil {
		return Decision{}, fmt.Errorf("解析决策JSON失败: %w", err)
	}

	return decision, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
