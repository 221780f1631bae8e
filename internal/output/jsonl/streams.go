package jsonl

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"cex-dex-arb-scanner/internal/config"
)

const (
	evaluationsFile = "evaluations.jsonl"
	bestTradesFile  = "best_trades.jsonl"
)

// Streams 扫描器的两条输出日志流
// 全量评估流受 log_all_evaluations 开关控制（关闭时仍写入
// 盈利机会）；最优成交流每区块至多一条，写入后立即 flush。
type Streams struct {
	// evaluations 全量评估流
	evaluations *Writer
	// bestTrades 最优成交流
	bestTrades *Writer
	// logAll 是否记录所有评估（含不盈利）
	logAll bool
	// logger 日志记录器
	logger *zap.Logger
}

// OpenStreams 打开输出日志流
// 参数 cfg: 输出配置
// 参数 logger: 日志记录器
func OpenStreams(cfg *config.OutputConfig, logger *zap.Logger) (*Streams, error) {
	evaluations, err := NewWriter(filepath.Join(cfg.Dir, evaluationsFile), cfg.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("打开评估日志流失败: %w", err)
	}

	bestTrades, err := NewWriter(filepath.Join(cfg.Dir, bestTradesFile), cfg.BufferSize)
	if err != nil {
		_ = evaluations.Close()
		return nil, fmt.Errorf("打开最优成交日志流失败: %w", err)
	}

	return &Streams{
		evaluations: evaluations,
		bestTrades:  bestTrades,
		logAll:      cfg.LogAllEvaluations,
		logger:      logger.Named("jsonl"),
	}, nil
}

// LogEvaluation 记录一次评估
// 不盈利的评估只在 log_all_evaluations 开启时写入。
func (s *Streams) LogEvaluation(rec *EvaluationRecord) {
	if !rec.IsProfitable && !s.logAll {
		return
	}
	if err := s.evaluations.Write(rec); err != nil {
		s.logger.Warn("写入评估记录失败", zap.Error(err))
	}
}

// LogBestTrade 记录每区块最优成交
// 立即 flush：最优成交低频且是最有价值的输出，不应停留在缓冲区。
func (s *Streams) LogBestTrade(rec *BestTradeRecord) {
	if err := s.bestTrades.Write(rec); err != nil {
		s.logger.Warn("写入最优成交记录失败", zap.Error(err))
		return
	}
	if err := s.bestTrades.Flush(); err != nil {
		s.logger.Warn("刷出最优成交日志失败", zap.Error(err))
	}
}

// Close 关闭两条日志流
func (s *Streams) Close() error {
	evalErr := s.evaluations.Close()
	bestErr := s.bestTrades.Close()

	if dropped := s.evaluations.Dropped() + s.bestTrades.Dropped(); dropped > 0 {
		s.logger.Warn("存在被丢弃的日志记录", zap.Int64("dropped", dropped))
	}

	if evalErr != nil {
		return evalErr
	}
	return bestErr
}
