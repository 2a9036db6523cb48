package order

var MigrateURL = migrateURL
