package main

import (
	"context"
	"log"
	"net/http"

	"donotmiss/internal/api"
	"donotmiss/internal/config"
	"donotmiss/internal/db"
	"donotmiss/pkg/jira"
	"donotmiss/pkg/task"
)

func main() {
	ctx := context.Background()
	cfg := config.FromEnv()

	store, closeStore, err := db.OpenStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	jiraClient := jira.New(cfg.JiraSite, cfg.JiraEmail, cfg.JiraAPIToken, cfg.JiraProjectKey)
	if !jiraClient.Configured() {
		log.Printf("jira not configured; sends will fail until JIRA_SITE and JIRA_API_TOKEN are set")
	}

	lifecycle := task.NewService(store, jiraClient)
	server := api.New(store, lifecycle, jiraClient)

	log.Printf("donotmiss backend listening on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, server); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
