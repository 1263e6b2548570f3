package main

import (
	"github.com/dosco/pipejin/serv"
	"github.com/spf13/cobra"
)

// servCmd is the cobra CLI command for the serve subcommand
func servCmd() *cobra.Command {
	c := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"serv"},
		Short:   "Run the PipeJin service",
		Run:     cmdServ,
	}
	return c
}

// lambdaCmd runs the same API behind the AWS Lambda runtime
func lambdaCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "lambda",
		Short: "Run the PipeJin service as an AWS Lambda function",
		Run:   cmdLambda,
	}
	return c
}

// cmdServ is the handler for the serve subcommand
func cmdServ(*cobra.Command, []string) {
	setup(cpath)

	pj, err := serv.NewPipeJinService(conf)
	if err != nil {
		log.Fatalf("%s", err)
	}

	if err := pj.Start(); err != nil {
		log.Fatalf("%s", err)
	}
}

func cmdLambda(*cobra.Command, []string) {
	setup(cpath)

	pj, err := serv.NewPipeJinService(conf)
	if err != nil {
		log.Fatalf("%s", err)
	}
	defer pj.Close()

	pj.StartLambda()
}
