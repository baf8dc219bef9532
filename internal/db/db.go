package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/sdclabs/chatgate/internal/tenant"
)

// Connect opens the MySQL database and migrates the tenants table.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := gdb.AutoMigrate(&tenant.Tenant{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
