package main

import (
	"os"
	"text/template"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	yaml "gopkg.in/yaml.v2"

	"github.com/openedx/xapi-db-load/internal/common"
	"github.com/openedx/xapi-db-load/internal/common/app"
	"github.com/openedx/xapi-db-load/internal/loadtest/configuration"
	"github.com/openedx/xapi-db-load/internal/loadtest/orchestrator"
)

const customConfigLocation = "./config/xapi-db-load"

const reportTemplate = `
=============== LOAD TEST REPORT ===============
Backend:  {{.Backend}}
Started:  {{.Start}}
Finished: {{.End}}
Duration: {{.Duration}}

Tasks:
{{- range .Tasks}}
  {{.Name}}: {{.Completed}}/{{.Total}} units{{if .Finished}} (complete){{end}}
{{- end}}

Outcome: {{.Outcome}}
================================================
`

func init() {
	pflag.StringSlice("config", []string{}, "Fully qualified path to additional configuration files")
	pflag.Bool("load-only", false, "Skip data generation and bulk load previously staged files")
	pflag.Parse()
}

func main() {
	common.ConfigureLogging()
	common.BindCommandlineArguments()

	var config configuration.Config
	userConfigs := viper.GetStringSlice("config")
	common.LoadConfig(&config, customConfigLocation, userConfigs)

	if err := config.Validate(); err != nil {
		log.WithError(err).Error("invalid configuration")
		os.Exit(1)
	}

	if rendered, err := yaml.Marshal(config); err == nil {
		log.Infof("starting with config:\n%s", rendered)
	}

	ctx := app.CreateContextWithShutdown()

	runner, err := orchestrator.New(ctx, config)
	if err != nil {
		log.WithError(err).Error("failed to construct backend")
		os.Exit(1)
	}

	runErr := runner.Run(ctx, viper.GetBool("load-only"))
	printReport(config, runner, runErr)

	if err := runner.Close(); err != nil {
		log.WithError(err).Error("failed to close backend cleanly")
	}
	if runErr != nil {
		os.Exit(1)
	}
}

type taskReport struct {
	Name      string
	Completed int64
	Total     int64
	Finished  bool
}

func printReport(config configuration.Config, runner *orchestrator.Runner, runErr error) {
	outcome := "success"
	if runErr != nil {
		outcome = "failed: " + runErr.Error()
	}

	var tasks []taskReport
	for _, t := range runner.Tasks() {
		tasks = append(tasks, taskReport{
			Name:      t.Name(),
			Completed: t.CompletedUnits(),
			Total:     t.TotalUnits(),
			Finished:  t.Finished(),
		})
	}

	report := struct {
		Backend  string
		Start    string
		End      string
		Duration time.Duration
		Tasks    []taskReport
		Outcome  string
	}{
		Backend:  config.Backend,
		Start:    runner.StartTime().Format(time.RFC3339),
		End:      runner.EndTime().Format(time.RFC3339),
		Duration: runner.EndTime().Sub(runner.StartTime()).Round(time.Second),
		Tasks:    tasks,
		Outcome:  outcome,
	}

	if err := template.Must(template.New("report").Parse(reportTemplate)).Execute(os.Stdout, report); err != nil {
		log.WithError(err).Error("failed to render run report")
	}
}
