// Command fsmmigrate manages the schema for the two durable FSM log tables.
//
// Usage:
//
//	fsmmigrate auto           # gorm.AutoMigrate fsm_logs/fsm_event_logs (sqlite or postgres)
//	fsmmigrate up             # apply pending versioned SQL migrations (postgres only)
//	fsmmigrate down           # rollback one migration
//	fsmmigrate down-all       # rollback every migration
//	fsmmigrate to N           # migrate to version N
//	fsmmigrate force N        # force version to N (fix a dirty state)
//	fsmmigrate version        # show current migration version
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"apexfsm/internal/fsmconfig"
	"apexfsm/internal/fsmdb"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := fsmconfig.Load()
	if err != nil {
		log.Fatalf("fsmmigrate: load config: %v", err)
	}

	command := os.Args[1]

	if command == "auto" {
		runAutoMigrate(cfg)
		return
	}

	migrationsPath := getenv("FSM_MIGRATIONS_PATH", "migrations")
	runner, err := fsmdb.NewMigrationRunner(migrationsPath, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("fsmmigrate: %v", err)
	}
	defer runner.Close()

	switch command {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.RollbackMigration()
	case "down-all":
		err = runner.RollbackAll()
	case "to":
		v := requireVersionArg()
		err = runner.MigrateToVersion(v)
	case "force":
		v := requireVersionArg()
		err = runner.Force(int(v))
	case "version":
		version, dirty, verr := runner.GetVersion()
		if verr != nil {
			log.Fatalf("fsmmigrate: %v", verr)
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return
	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("fsmmigrate: %s failed: %v", command, err)
	}
	log.Printf("fsmmigrate: %s complete", command)
}

func runAutoMigrate(cfg *fsmconfig.Config) {
	driver := "sqlite"
	dsn := getenv("FSM_SQLITE_PATH", "fsm.db")
	if cfg.DatabaseURL != "" {
		driver = "postgres"
		dsn = cfg.DatabaseURL
	}
	db, err := fsmdb.Open(fsmdb.Config{Driver: driver, DSN: dsn})
	if err != nil {
		log.Fatalf("fsmmigrate: open: %v", err)
	}
	if err := fsmdb.Migrate(db); err != nil {
		log.Fatalf("fsmmigrate: automigrate: %v", err)
	}
	log.Println("fsmmigrate: automigrate complete")
}

func requireVersionArg() uint {
	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}
	v, err := strconv.ParseUint(os.Args[2], 10, 32)
	if err != nil {
		log.Fatalf("fsmmigrate: invalid version %q", os.Args[2])
	}
	return uint(v)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printUsage() {
	fmt.Println(`Usage: fsmmigrate <auto|up|down|down-all|to N|force N|version>`)
}
