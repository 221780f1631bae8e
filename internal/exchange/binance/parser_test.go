// Package binance 深度消息解析单元测试
package binance

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse_LongFieldVariant(t *testing.T) {
	p := NewParser()
	data := []byte(`{
		"lastUpdateId": 123,
		"bids": [["3000.50", "1.2"], ["2999.00", "3"]],
		"asks": [["3001.00", "0.5"]]
	}`)

	book, err := p.Parse(data)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if book == nil {
		t.Fatalf("期望得到快照")
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("档位数量错误: bids=%d asks=%d", len(book.Bids), len(book.Asks))
	}
	if !book.Bids[0].Price.Equal(decimal.RequireFromString("3000.5")) {
		t.Fatalf("买一价错误: %s", book.Bids[0].Price)
	}
	if !book.Asks[0].Qty.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("卖一量错误: %s", book.Asks[0].Qty)
	}
	if book.UpdatedAtUnixNs == 0 {
		t.Fatalf("应标注本机接收时间")
	}
}

func TestParse_ShortFieldVariant(t *testing.T) {
	p := NewParser()
	data := []byte(`{
		"e": "depthUpdate",
		"E": 1700000000000,
		"b": [["3000", "1"]],
		"a": [["3001", "2"]]
	}`)

	book, err := p.Parse(data)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if book == nil {
		t.Fatalf("期望得到快照")
	}
	if !book.Bids[0].Price.Equal(decimal.NewFromInt(3000)) || !book.Asks[0].Price.Equal(decimal.NewFromInt(3001)) {
		t.Fatalf("短字段变体解析错误: %+v", book)
	}
}

func TestParse_VariantsNormalizeIdentically(t *testing.T) {
	p := NewParser()
	long := []byte(`{"bids": [["3000", "1"]], "asks": [["3001", "2"]]}`)
	short := []byte(`{"b": [["3000", "1"]], "a": [["3001", "2"]]}`)

	b1, err1 := p.Parse(long)
	b2, err2 := p.Parse(short)
	if err1 != nil || err2 != nil {
		t.Fatalf("解析失败: %v %v", err1, err2)
	}
	if len(b1.Bids) != len(b2.Bids) || !b1.Bids[0].Price.Equal(b2.Bids[0].Price) ||
		!b1.Asks[0].Qty.Equal(b2.Asks[0].Qty) {
		t.Fatalf("两种形状应归一化为相同快照: %+v vs %+v", b1, b2)
	}
}

func TestParse_NoDepthFields_IsNoop(t *testing.T) {
	p := NewParser()

	for _, data := range [][]byte{
		[]byte(`{"result": null, "id": 1}`),
		[]byte(`{}`),
		[]byte(`{"bids": [], "asks": []}`),
	} {
		book, err := p.Parse(data)
		if err != nil {
			t.Fatalf("no-op 消息不应报错: %v", err)
		}
		if book != nil {
			t.Fatalf("no-op 消息不应产生快照: %+v", book)
		}
	}
}

func TestParse_OneSidedMessage_IsNoop(t *testing.T) {
	// 单边消息不得覆盖已持有的双边快照：视为 no-op，不产生新快照
	p := NewParser()

	for _, data := range [][]byte{
		[]byte(`{"bids": [["3000", "1"]], "asks": []}`),
		[]byte(`{"bids": [], "asks": [["3001", "2"]]}`),
		[]byte(`{"b": [["3000", "1"]]}`),
		[]byte(`{"a": [["3001", "2"]]}`),
	} {
		book, err := p.Parse(data)
		if err != nil {
			t.Fatalf("no-op 消息不应报错: %v", err)
		}
		if book != nil {
			t.Fatalf("no-op 消息不应产生快照: %+v", book)
		}
	}
}

func TestParse_MalformedJSON(t *testing.T) {
	p := NewParser()
	if _, err := p.Parse([]byte(`{not json`)); err == nil {
		t.Fatalf("非法 JSON 应返回错误")
	}
}

func TestParse_MalformedLevel(t *testing.T) {
	p := NewParser()

	if _, err := p.Parse([]byte(`{"bids": [["abc", "1"]], "asks": [["3001", "2"]]}`)); err == nil {
		t.Fatalf("非法价格字符串应返回错误")
	}
	if _, err := p.Parse([]byte(`{"bids": [["3000"]], "asks": [["3001", "2"]]}`)); err == nil {
		t.Fatalf("字段不足的档位应返回错误")
	}
}

func TestParse_KeepsNonPositiveLevels(t *testing.T) {
	// 非正档位在解析阶段保留，由消费方剔除
	p := NewParser()
	data := []byte(`{"bids": [["3000", "0"]], "asks": [["0", "1"]]}`)

	book, err := p.Parse(data)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if len(book.Bids) != 1 || len(book.Asks) != 1 {
		t.Fatalf("非正档位不应在解析阶段剔除: %+v", book)
	}
}
