package fastparse

import (
	"testing"
)

func TestParseDecimal(t *testing.T) {
	v, err := ParseDecimal("3012.450")
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if v.String() != "3012.45" {
		t.Fatalf("解析值错误: got=%s", v)
	}

	if _, err := ParseDecimal("not-a-number"); err == nil {
		t.Fatalf("非法输入应返回错误")
	}
}
