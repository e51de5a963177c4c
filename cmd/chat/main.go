package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/agencykit/projectchat/internal/client"
	"github.com/agencykit/projectchat/internal/session"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/agencykit/projectchat/internal/tui"
	"go.uber.org/zap"
)

func main() {
	serverFlag := flag.String("server", "http://127.0.0.1:8480", "chatd base URL")
	projectFlag := flag.String("project", "", "project id (required)")
	userFlag := flag.String("user", "", "sender id (required)")
	nameFlag := flag.String("name", "", "sender display name")
	roleFlag := flag.String("role", store.RoleParticipant, "sender role (participant|staff)")
	createFlag := flag.Bool("create", false, "provision the project chat if it does not exist")
	flag.Parse()

	if *projectFlag == "" || *userFlag == "" {
		fmt.Fprintln(os.Stderr, "error: -project and -user are required")
		flag.Usage()
		os.Exit(1)
	}

	c := client.New(*serverFlag, client.Identity{
		ID:   *userFlag,
		Name: *nameFlag,
		Role: *roleFlag,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if *createFlag {
		if _, err := c.CreateProject(ctx, *projectFlag, ""); err != nil {
			fmt.Fprintf(os.Stderr, "error: create project: %v\n", err)
			os.Exit(1)
		}
	}

	sess := session.New(*projectFlag, *userFlag, c, c, session.Config{}, zap.NewNop())
	if err := sess.Open(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: open session: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	app := tui.NewApp(sess, *userFlag)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
