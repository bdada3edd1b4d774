package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	internal_http "github.com/G159w/chat-bot-cordinator/internal/http"
	"github.com/G159w/chat-bot-cordinator/internal/log"
	internal_storage "github.com/G159w/chat-bot-cordinator/internal/storage"
	"github.com/G159w/chat-bot-cordinator/pkg/models"
	"github.com/G159w/chat-bot-cordinator/pkg/service"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("db", "", "Database connection string (optional if DB_* env vars are set)")
	rootCmd.PersistentFlags().String("user", "", "User ID acting as the caller")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the coordinator HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			store := initStore(cmd)
			defer store.Close()
			if err := internal_http.StartServer(port, store); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "Port to listen on")

	crewCreateCmd := &cobra.Command{
		Use:   "crew-create [name]",
		Short: "Create a crew",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			svc := service.NewCrewService(store, log.GetLogger())
			id, err := svc.CreateCrew(mustUser(cmd), args[0], "", nil)
			if err != nil {
				fatalf("failed to create crew: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Created crew '%s' with ID %s\n", args[0], id)
		},
	}

	crewListCmd := &cobra.Command{
		Use:   "crew-list",
		Short: "List crews",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			svc := service.NewCrewService(store, log.GetLogger())
			crews, err := svc.ListCrews(mustUser(cmd))
			if err != nil {
				fatalf("failed to list crews: %v", err)
			}
			if len(crews) == 0 {
				fmt.Fprintf(os.Stdout, "No crews found.\n")
				return
			}
			for _, c := range crews {
				fmt.Fprintf(os.Stdout, "- ID: %s, Name: %s, Active: %t, Created: %s\n",
					c.ID, c.Name, c.IsActive, c.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	flowExecuteCmd := &cobra.Command{
		Use:   "flow-execute [flow-id] [input-json]",
		Short: "Execute a flow and wait for it to finish",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			var input models.JSONMap
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &input); err != nil {
					fatalf("invalid input JSON: %v", err)
				}
			}
			svc := service.NewFlowService(store, nil, log.GetLogger())
			executionID, err := svc.ExecuteFlow(mustUser(cmd), args[0], input)
			if err != nil {
				fatalf("failed to execute flow: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Submitted execution %s\n", executionID)
			svc.Wait()
			printFlowExecution(svc, executionID, mustUser(cmd))
		},
	}

	workflowExecuteCmd := &cobra.Command{
		Use:   "workflow-execute [crew-id] [input]",
		Short: "Execute a crew workflow and wait for it to finish",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			svc := service.NewWorkflowService(store, nil, log.GetLogger())
			executionID, err := svc.ExecuteWorkflow(mustUser(cmd), args[0], args[1])
			if err != nil {
				fatalf("failed to execute workflow: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Submitted execution %s\n", executionID)
			svc.Wait()
			execution, err := svc.GetExecutionStatus(executionID, mustUser(cmd))
			if err != nil {
				fatalf("failed to get execution status: %v", err)
			}
			fmt.Fprintf(os.Stdout, "Execution %s finished with status '%s'\n", execution.ID, execution.Status)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show a flow execution's status and task records",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			svc := service.NewFlowService(store, nil, log.GetLogger())
			printFlowExecution(svc, args[0], mustUser(cmd))
		},
	}

	rootCmd.AddCommand(serveCmd, crewCreateCmd, crewListCmd, flowExecuteCmd, workflowExecuteCmd, statusCmd)
}

func printFlowExecution(svc *service.FlowService, executionID, userID string) {
	details, err := svc.GetExecutionDetails(executionID, userID)
	if err != nil {
		fatalf("failed to get execution details: %v", err)
	}
	fmt.Fprintf(os.Stdout, "Execution %s: %s\n", details.Execution.ID, details.Execution.Status)
	for _, te := range details.TaskExecutions {
		line := fmt.Sprintf("- task %s: %s (%dms)", te.TaskID, te.Status, te.Duration)
		if te.ErrorMsg != "" {
			line += ", error: " + te.ErrorMsg
		}
		fmt.Fprintln(os.Stdout, line)
	}
}

func mustUser(cmd *cobra.Command) string {
	user, err := cmd.Flags().GetString("user")
	if err != nil || user == "" {
		fatalf("--user is required")
	}
	return user
}

func fatalf(format string, args ...interface{}) {
	log.GetLogger().Errorf(format, args...)
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func initStore(cmd *cobra.Command) *internal_storage.PostgresStore {
	dbConnStr, _ := cmd.Flags().GetString("db")
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		fatalf("failed to initialize store: %v", err)
	}
	return store
}
