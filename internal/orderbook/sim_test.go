// Package orderbook 执行模拟器单元测试
package orderbook

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"cex-dex-arb-scanner/internal/core/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func levels(pairs ...[2]string) []model.Level {
	out := make([]model.Level, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, model.Level{Price: d(p[0]), Qty: d(p[1])})
	}
	return out
}

func TestSimulateSell_Scenario(t *testing.T) {
	// bids [(3000,1),(2990,2)]，0bps 卖出 1.5 base：
	// notional = 3000·1 + 2990·0.5 = 4495，均价 = 4495/1.5
	sim := NewSimulator(d("0"))
	bids := levels([2]string{"3000", "1"}, [2]string{"2990", "2"})

	q, err := sim.SimulateSell(d("1.5"), bids, "WETH", "USDC")
	if err != nil {
		t.Fatalf("SimulateSell 失败: %v", err)
	}
	if !q.AmountOut.Equal(d("4495")) {
		t.Fatalf("notional 错误: got=%s", q.AmountOut)
	}
	if !q.AmountIn.Equal(d("1.5")) {
		t.Fatalf("卖出数量错误: got=%s", q.AmountIn)
	}
	if !q.AveragePrice.Equal(d("4495").Div(d("1.5"))) {
		t.Fatalf("均价错误: got=%s", q.AveragePrice)
	}
	if q.TokenIn != "WETH" || q.TokenOut != "USDC" {
		t.Fatalf("代币标注错误: %+v", q)
	}
}

func TestSimulateBuy_Scenario(t *testing.T) {
	// asks [(3000,1),(3010,2)]，0bps 用 4500 quote 买入：
	// 第一档成交 1 @3000（花 3000），第二档花剩余 1500，
	// 成交 1500/3010 base，notional 全部用完，不算流动性不足。
	sim := NewSimulator(d("0"))
	asks := levels([2]string{"3000", "1"}, [2]string{"3010", "2"})

	q, err := sim.SimulateBuy(d("4500"), asks, "USDC", "WETH")
	if err != nil {
		t.Fatalf("SimulateBuy 失败: %v", err)
	}
	wantBase := d("1").Add(d("1500").Div(d("3010")))
	if !q.AmountOut.Equal(wantBase) {
		t.Fatalf("base 数量错误: got=%s want=%s", q.AmountOut, wantBase)
	}
	if !q.AmountIn.Equal(d("4500")) {
		t.Fatalf("quote 花费错误: got=%s", q.AmountIn)
	}
	if !q.AveragePrice.Equal(d("4500").Div(wantBase)) {
		t.Fatalf("均价错误: got=%s", q.AveragePrice)
	}
}

func TestSimulateBuy_InsufficientLiquidity(t *testing.T) {
	sim := NewSimulator(d("0"))
	asks := levels([2]string{"3000", "1"}) // 总 notional 3000

	if _, err := sim.SimulateBuy(d("3001"), asks, "USDC", "WETH"); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("期望流动性不足，got=%v", err)
	}
}

func TestSimulateSell_InsufficientLiquidity(t *testing.T) {
	sim := NewSimulator(d("0"))
	bids := levels([2]string{"3000", "1"}, [2]string{"2990", "2"}) // 总量 3

	if _, err := sim.SimulateSell(d("3.0001"), bids, "WETH", "USDC"); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("期望流动性不足，got=%v", err)
	}
}

func TestSimulate_NonPositiveRequest(t *testing.T) {
	sim := NewSimulator(d("1"))
	bids := levels([2]string{"3000", "1"})

	if _, err := sim.SimulateSell(d("0"), bids, "WETH", "USDC"); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("非正数量应返回流动性不足，got=%v", err)
	}
	if _, err := sim.SimulateBuy(d("-5"), bids, "USDC", "WETH"); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("非正 notional 应返回流动性不足，got=%v", err)
	}
	if _, err := sim.SimulateBuy(d("5"), nil, "USDC", "WETH"); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("空订单簿应返回流动性不足，got=%v", err)
	}
}

func TestSimulate_SkipsInvalidLevels(t *testing.T) {
	sim := NewSimulator(d("0"))
	bids := levels(
		[2]string{"0", "5"},    // 非正价格，跳过
		[2]string{"3000", "0"}, // 非正数量，跳过
		[2]string{"2990", "2"},
	)

	q, err := sim.SimulateSell(d("1"), bids, "WETH", "USDC")
	if err != nil {
		t.Fatalf("SimulateSell 失败: %v", err)
	}
	if !q.AmountOut.Equal(d("2990")) {
		t.Fatalf("应只在有效档位成交: got=%s", q.AmountOut)
	}
}

func TestSimulate_FeeApplication(t *testing.T) {
	// 10bps：净产出 = 毛产出 × (1 - 0.001)，精确相等
	sim := NewSimulator(d("10"))

	bids := levels([2]string{"3000", "2"})
	sell, err := sim.SimulateSell(d("1"), bids, "WETH", "USDC")
	if err != nil {
		t.Fatalf("SimulateSell 失败: %v", err)
	}
	wantNet := d("3000").Mul(d("1").Sub(d("0.001")))
	if !sell.AmountOut.Equal(wantNet) {
		t.Fatalf("卖出净额错误: got=%s want=%s", sell.AmountOut, wantNet)
	}

	asks := levels([2]string{"3000", "2"})
	buy, err := sim.SimulateBuy(d("3000"), asks, "USDC", "WETH")
	if err != nil {
		t.Fatalf("SimulateBuy 失败: %v", err)
	}
	wantBase := d("1").Mul(d("1").Sub(d("0.001")))
	if !buy.AmountOut.Equal(wantBase) {
		t.Fatalf("买入净额错误: got=%s want=%s", buy.AmountOut, wantBase)
	}
}

func TestSimulator_NegativeFee(t *testing.T) {
	// 负手续费（测试用返佣口径）：净产出大于毛产出
	sim := NewSimulator(d("-100"))
	bids := levels([2]string{"3000", "2"})

	q, err := sim.SimulateSell(d("1"), bids, "WETH", "USDC")
	if err != nil {
		t.Fatalf("SimulateSell 失败: %v", err)
	}
	if !q.AmountOut.Equal(d("3030")) {
		t.Fatalf("负费率净额错误: got=%s", q.AmountOut)
	}
}
