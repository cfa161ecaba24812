package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"stock_radar/internal/models"
	"stock_radar/internal/service"
)

// TestPrintScan_Top 测试只输出前 N 只
func TestPrintScan_Top(t *testing.T) {
	result := &service.ScanResult{TradeDate: "20240110", Universe: 300}
	for i := 0; i < 12; i++ {
		result.Candidates = append(result.Candidates, models.ScanCandidate{
			TSCode: fmt.Sprintf("6000%02d.SH", i),
			Score:  80,
			Reason: "突破箱体 1.10 倍",
		})
	}

	var buf bytes.Buffer
	printScan(&buf, result, 10)

	out := buf.String()
	assert.Contains(t, out, "共 12 只")
	assert.Contains(t, out, "600009.SH")
	assert.NotContains(t, out, "600010.SH")
	assert.Equal(t, 10, strings.Count(out, "突破箱体"))
}

// TestPrintScan_Empty 测试无结果
func TestPrintScan_Empty(t *testing.T) {
	var buf bytes.Buffer
	printScan(&buf, &service.ScanResult{Message: service.MsgNoCandidates}, 10)
	assert.Equal(t, "no candidates\n", buf.String())
}

// TestPrintSync 测试同步结果输出
func TestPrintSync(t *testing.T) {
	var buf bytes.Buffer
	printSync(&buf, &service.SyncResult{LastError: service.MsgAlreadyCurrent})
	assert.Contains(t, buf.String(), "already current")

	buf.Reset()
	printSync(&buf, &service.SyncResult{StartDate: "20240102", EndDate: "20240110", SuccessCount: 6, FailCount: 1, LastError: "timeout"})
	assert.Contains(t, buf.String(), "成功 6 天, 失败 1 天")
	assert.Contains(t, buf.String(), "最后错误: timeout")
}
