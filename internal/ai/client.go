package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"paper-trader/internal/config"
	"paper-trader/internal/exchange"
	"paper-trader/internal/execution"
	"paper-trader/internal/feature"
)

// marketData 抽象市场快照获取。
type marketData interface {
	GetSnapshot(ctx context.Context, req exchange.SnapshotRequest) (exchange.MarketSnapshot, error)
}

var _ marketData = (*exchange.MarketDataService)(nil)

// Client 封装市场数据、特征提取与 OpenAI 决策调用。
type Client struct {
	cfg       config.OpenAIConfig
	logger    *zap.Logger
	sdk       *openai.Client
	market    marketData
	extractor *feature.Extractor
}

// NewClient 使用给定配置创建 AI 决策客户端。
func NewClient(cfg config.OpenAIConfig, market marketData, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ai: openai api_key 不能为空")
	}
	if market == nil {
		return nil, errors.New("ai: 市场数据服务不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		cfg:       cfg,
		logger:    logger,
		sdk:       newSDK(cfg),
		market:    market,
		extractor: feature.NewExtractor(logger),
	}, nil
}

func newSDK(cfg config.OpenAIConfig) *openai.Client {
	sdkCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	sdkCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout + 5*time.Second}
	return openai.NewClientWithConfig(sdkCfg)
}

// Decide 拉取市场数据、提取特征并请求模型给出交易决策。
// 模型输出无法解析或字段非法时降级为观望；传输层错误原样返回。
func (c *Client) Decide(ctx context.Context, state execution.Context) (Decision, error) {
	if c.cfg.Model == "" {
		return Decision{}, errors.New("ai: openai model 不能为空")
	}

	snapshot, err := c.market.GetSnapshot(ctx, exchange.DefaultSnapshotRequest())
	if err != nil {
		return Decision{}, fmt.Errorf("ai: 获取市场快照失败: %w", err)
	}

	features, err := c.extractor.Extract(ctx, snapshot)
	if err != nil {
		return Decision{}, fmt.Errorf("ai: 特征提取失败: %w", err)
	}

	prompt, err := BuildPrompt(features, state)
	if err != nil {
		return Decision{}, err
	}

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		c.logger.Error("模型调用失败", zap.Error(err))
		return Decision{}, err
	}

	decision, err := ParseDecision(raw)
	if err != nil {
		c.logger.Warn("解析模型决策失败，降级为观望",
			zap.Error(err),
			zap.String("raw_content", raw),
		)
		return HoldDecision(fmt.Sprintf("模型输出无法解析: %v", err)), nil
	}

	normalized, normErr := decision.Normalize()
	if normErr != nil {
		c.logger.Warn("模型决策字段非法，已降级为观望",
			zap.Error(normErr),
			zap.String("raw_content", raw),
		)
	}

	c.logger.Info("AI 决策生成",
		zap.String("action", string(normalized.Action)),
		zap.Float64("qty", normalized.Qty),
		zap.String("reason", normalized.Reason),
	)

	return normalized, nil
}

// complete 发送提示词并返回模型的文本输出。
func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("ai: 调用模型失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("ai: 模型未返回任何候选")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("ai: 模型返回空内容")
	}
	return content, nil
}
