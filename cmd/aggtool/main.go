// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/daviszhen/aggstate/pkg/aggregate"
	"github.com/daviszhen/aggstate/pkg/modelcache"
	"github.com/daviszhen/aggstate/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initRootCmd()
	initDescribeCmd()
	initListCmd()
	initRunCmd()
	initModelsCmd()
}

var aggCfg = util.DefaultConfig()

///root cmd

var info = "aggregate function states: describe, run and exchange partials"
var RootCmd = &cobra.Command{
	Use:          "aggtool",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use aggtool --help or -h")
	},
}

func initRootCmd() {
	def := util.DefaultConfig()
	RootCmd.PersistentFlags().StringVar(&aggCfg.Log.Level, "log_level", def.Log.Level, "log level. debug, info, warn, error")
	RootCmd.PersistentFlags().BoolVar(&aggCfg.Aggregate.DebugChecks, "debug_checks", def.Aggregate.DebugChecks, "check state lifecycles")

	viper.BindPFlag("log.level", RootCmd.PersistentFlags().Lookup("log_level"))
	viper.BindPFlag("aggregate.debugChecks", RootCmd.PersistentFlags().Lookup("debug_checks"))

	viper.SetDefault("aggregate.alignStates", def.Aggregate.AlignStates)
	viper.SetDefault("aggregate.arenaChunkSize", def.Aggregate.ArenaChunkSize)
	viper.SetDefault("models.reloadPeriod", def.Models.ReloadPeriod)
}

func initCommonOptions() error {
	aggCfg.Log.Level = viper.GetString("log.level")
	aggCfg.Aggregate.DebugChecks = viper.GetBool("aggregate.debugChecks")
	aggCfg.Aggregate.AlignStates = viper.GetBool("aggregate.alignStates")
	aggCfg.Aggregate.ArenaChunkSize = viper.GetInt("aggregate.arenaChunkSize")
	err := util.InitLogger(aggCfg.Log.Level)
	if err != nil {
		return err
	}
	aggregate.SetDebugChecks(aggCfg.Aggregate.DebugChecks)
	return nil
}

//describe cmd

var describeTypes []string
var describeParams []string

var describeInfo = "print the resolved function tree"
var describeCmd = &cobra.Command{
	Use:   "describe <function>",
	Short: describeInfo,
	Long:  describeInfo,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := initCommonOptions()
		if err != nil {
			return err
		}
		return describeFunction(cmd.OutOrStdout(), aggregate.DefaultFactory, args[0], describeTypes, describeParams)
	},
}

func initDescribeCmd() {
	RootCmd.AddCommand(describeCmd)
	describeCmd.Flags().StringArrayVar(&describeTypes, "types", nil, "argument type, repeatable")
	describeCmd.Flags().StringArrayVar(&describeParams, "params", nil, "parameter, repeatable")
}

func describeFunction(w io.Writer, fac *aggregate.Factory, name string, types, params []string) error {
	args, err := parseTypes(types)
	if err != nil {
		return err
	}
	fn, err := fac.Get(name, args, parseParams(params))
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, aggregate.Describe(fn))
	return err
}

//list cmd

var listInfo = "list functions and combinator suffixes"
var listCmd = &cobra.Command{
	Use:   "list",
	Short: listInfo,
	Long:  listInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		return listFunctions(cmd.OutOrStdout(), aggregate.DefaultFactory)
	},
}

func initListCmd() {
	RootCmd.AddCommand(listCmd)
}

func listFunctions(w io.Writer, fac *aggregate.Factory) error {
	for _, name := range fac.Names() {
		_, err := fmt.Fprintln(w, name)
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "combinators: %s\n", strings.Join(fac.Suffixes(), " "))
	return err
}

//run cmd

var runInfo = "group and aggregate a data file over shards exchanging partials"
var runCmd = &cobra.Command{
	Use:   "run",
	Short: runInfo,
	Long:  runInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		err := initRunCfg()
		if err != nil {
			return err
		}
		j, err := newJob(aggCfg, aggregate.DefaultFactory)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if aggCfg.Run.ResultPath != "" {
			file, err := os.Create(aggCfg.Run.ResultPath)
			if err != nil {
				return err
			}
			defer file.Close()
			out = file
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return j.execute(ctx, out)
	},
}

func initRunCfg() error {
	err := initCommonOptions()
	if err != nil {
		return err
	}
	aggCfg.Run.DataPath = viper.GetString("run.dataPath")
	aggCfg.Run.DataFormat = viper.GetString("run.dataFormat")
	aggCfg.Run.Types = viper.GetStringSlice("run.types")
	aggCfg.Run.GroupBy = viper.GetIntSlice("run.groupBy")
	aggCfg.Run.Aggregates = viper.GetStringSlice("run.aggregates")
	aggCfg.Run.Shards = viper.GetInt("run.shards")
	aggCfg.Run.ResultPath = viper.GetString("run.resultPath")
	aggCfg.Partial.Codec = viper.GetString("partial.codec")
	return nil
}

func initRunCmd() {
	def := util.DefaultConfig()
	RootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&aggCfg.Run.DataPath, "data_path", "", "data file path")
	runCmd.Flags().StringVar(&aggCfg.Run.DataFormat, "data_format", def.Run.DataFormat, "data format. csv, parquet")
	runCmd.Flags().StringArrayVar(&aggCfg.Run.Types, "types", nil, "type of the next input column, repeatable")
	runCmd.Flags().IntSliceVar(&aggCfg.Run.GroupBy, "group_by", nil, "group key columns")
	runCmd.Flags().StringArrayVar(&aggCfg.Run.Aggregates, "aggregate", nil, "name(params)(columns), repeatable")
	runCmd.Flags().IntVar(&aggCfg.Run.Shards, "shards", def.Run.Shards, "number of shards")
	runCmd.Flags().StringVar(&aggCfg.Run.ResultPath, "result_path", "", "result path. stdout if empty")
	runCmd.Flags().StringVar(&aggCfg.Partial.Codec, "codec", def.Partial.Codec, "partial codec. none, zstd, s2, snappy, lz4")

	viper.BindPFlag("run.dataPath", runCmd.Flags().Lookup("data_path"))
	viper.BindPFlag("run.dataFormat", runCmd.Flags().Lookup("data_format"))
	viper.BindPFlag("run.types", runCmd.Flags().Lookup("types"))
	viper.BindPFlag("run.groupBy", runCmd.Flags().Lookup("group_by"))
	viper.BindPFlag("run.aggregates", runCmd.Flags().Lookup("aggregate"))
	viper.BindPFlag("run.shards", runCmd.Flags().Lookup("shards"))
	viper.BindPFlag("run.resultPath", runCmd.Flags().Lookup("result_path"))
	viper.BindPFlag("partial.codec", runCmd.Flags().Lookup("codec"))
}

//models cmd

var modelFeatures []string

var modelsInfo = "list configured models or evaluate one"
var modelsCmd = &cobra.Command{
	Use:   "models [model]",
	Short: modelsInfo,
	Long:  modelsInfo,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := initModelsCfg()
		if err != nil {
			return err
		}
		models, err := modelcache.New(aggCfg.Models)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return listModels(cmd.OutOrStdout(), models)
		}
		return evaluateModel(cmd.OutOrStdout(), models, args[0], modelFeatures)
	},
}

func initModelsCfg() error {
	err := initCommonOptions()
	if err != nil {
		return err
	}
	aggCfg.Models.ConfigPath = viper.GetString("models.configPath")
	aggCfg.Models.ReloadPeriod = viper.GetDuration("models.reloadPeriod")
	aggCfg.Models.ThrowOnError = viper.GetBool("models.throwOnError")
	return nil
}

func initModelsCmd() {
	RootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&aggCfg.Models.ConfigPath, "models_config", "", "models config path")
	modelsCmd.Flags().BoolVar(&aggCfg.Models.ThrowOnError, "throw_on_error", false, "fail on the first model that does not load")
	modelsCmd.Flags().StringArrayVar(&modelFeatures, "feature", nil, "name=value, repeatable")

	viper.BindPFlag("models.configPath", modelsCmd.Flags().Lookup("models_config"))
	viper.BindPFlag("models.throwOnError", modelsCmd.Flags().Lookup("throw_on_error"))
}

func listModels(w io.Writer, models *modelcache.Models) error {
	for _, name := range models.Names() {
		m, err := models.Get(name)
		if err != nil {
			_, err = fmt.Fprintf(w, "%s\terror: %v\n", name, err)
		} else {
			_, err = fmt.Fprintf(w, "%s\t%s\t%s\n", name, m.Type(), strings.Join(m.Features(), ","))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func evaluateModel(w io.Writer, models *modelcache.Models, name string, features []string) error {
	m, err := models.Get(name)
	if err != nil {
		return err
	}
	values := make(map[string]float64, len(features))
	for _, kv := range features {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return errors.Newf("feature %q is not name=value", kv)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return errors.Wrapf(err, "feature %s", k)
		}
		values[strings.TrimSpace(k)] = f
	}
	ret, err := m.Evaluate(values)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strconv.FormatFloat(ret, 'g', -1, 64))
	return err
}

var defCfgFilePaths = []string{".", "etc/aggtool"}
var cfgFileName = "aggtool.toml"

// loadConfig reads the first valid aggtool.toml. Flags and defaults
// apply without one.
func loadConfig() {
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if util.FileIsValid(fpath) {
			viper.SetConfigFile(fpath)
			err := viper.ReadInConfig()
			if err != nil {
				util.Error("viper load config file failed",
					zap.String("fpath", fpath),
					zap.Error(err))
				continue
			}
			return
		}
	}
	util.Debug("aggtool.toml does not exist, using flags and defaults")
}

func main() {
	if err := RootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
