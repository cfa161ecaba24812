package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"stock_radar/internal/service"
)

var (
	syncLookback int
	scanTop      int
	resetYes     bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "增量同步日线与资金流",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() {
			_ = rt.Close()
			_ = logger.Sync()
		}()

		result, err := rt.Sync(cmd.Context(), syncLookback)
		if err != nil {
			return err
		}
		printSync(cmd.OutOrStdout(), result)
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "基于本地数据选股",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() {
			_ = rt.Close()
			_ = logger.Sync()
		}()

		result, err := rt.Scan(cmd.Context())
		if err != nil {
			return err
		}
		printScan(cmd.OutOrStdout(), result, scanTop)
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [ts_code]",
	Short: "单只股票诊断",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() {
			_ = rt.Close()
			_ = logger.Sync()
		}()

		d, err := rt.Diagnose(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), d)
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "本地数据库概况",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, logger, rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() {
			_ = rt.Close()
			_ = logger.Sync()
		}()

		info, err := rt.Info(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), info)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "删除本地全部行情表",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("重置会删除全部本地数据，请加 --yes 确认")
		}
		_, logger, rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() {
			_ = rt.Close()
			_ = logger.Sync()
		}()

		if err := rt.Reset(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "重置成功")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd, scanCmd, checkCmd, infoCmd, resetCmd)

	syncCmd.Flags().IntVar(&syncLookback, "lookback", 0, "本地为空时回看的自然日天数（0 使用配置）")
	scanCmd.Flags().IntVar(&scanTop, "top", 10, "输出前 N 只")
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "确认重置")
}

func printSync(w io.Writer, r *service.SyncResult) {
	if r.SuccessCount == 0 && r.FailCount == 0 && r.LastError != "" {
		fmt.Fprintf(w, "无需同步: %s\n", r.LastError)
		return
	}
	fmt.Fprintf(w, "同步完成 %s ~ %s: 成功 %d 天, 失败 %d 天\n", r.StartDate, r.EndDate, r.SuccessCount, r.FailCount)
	if r.LastError != "" {
		fmt.Fprintf(w, "最后错误: %s\n", r.LastError)
	}
}

func printScan(w io.Writer, r *service.ScanResult, top int) {
	if len(r.Candidates) == 0 {
		fmt.Fprintln(w, service.MsgNoCandidates)
		return
	}
	fmt.Fprintf(w, "%s 选股结果（共 %d 只，股票池 %d）\n", r.TradeDate, len(r.Candidates), r.Universe)
	for i, c := range r.Candidates {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(w, "%2d. %s %s [%s] 价格 %.2f 涨幅 %.2f%% 得分 %.0f\n    %s\n",
			i+1, c.TSCode, c.Name, c.Sector, c.Price, c.PctChg, c.Score, c.Reason)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
