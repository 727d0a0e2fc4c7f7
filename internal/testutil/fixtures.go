package testutil

// SampleManifest is a small manifest: two models and one data test.
const SampleManifest = `{
  "metadata": {"dbt_version": "1.8.0", "project_name": "shop"},
  "nodes": {
    "model.shop.orders": {
      "unique_id": "model.shop.orders",
      "resource_type": "model",
      "name": "orders",
      "database": "analytics",
      "schema": "public",
      "alias": "orders",
      "path": "core_data/orders.sql",
      "original_file_path": "models/core_data/orders.sql",
      "config": {"materialized": "table", "tags": ["daily"]},
      "meta": {"owner": "data-team"},
      "compiled_code": "select * from stg_orders",
      "columns": {
        "order_id": {"name": "order_id", "data_type": "bigint"},
        "day_dt": {"name": "day_dt", "data_type": "date"}
      }
    },
    "model.shop.customers": {
      "unique_id": "model.shop.customers",
      "resource_type": "model",
      "name": "customers",
      "database": "analytics",
      "schema": "public",
      "path": "core_data/customers.sql",
      "original_file_path": "models/core_data/customers.sql",
      "config": {"materialized": "view"}
    },
    "test.shop.not_null_orders_order_id": {
      "unique_id": "test.shop.not_null_orders_order_id",
      "resource_type": "test",
      "name": "not_null_orders_order_id",
      "database": "analytics",
      "schema": "public_dbt_test__audit",
      "path": "not_null_orders_order_id.sql",
      "original_file_path": "models/core_data/schema.yml",
      "config": {"materialized": "test"}
    }
  },
  "sources": {}
}`

// SampleRunResults reports a successful build of SampleManifest.
const SampleRunResults = `{
  "metadata": {"dbt_version": "1.8.0"},
  "results": [
    {"unique_id": "model.shop.orders", "status": "success", "message": "SELECT 42", "adapter_response": {"_message": "SELECT 42", "rows_affected": 42}},
    {"unique_id": "model.shop.customers", "status": "success", "message": "CREATE VIEW", "adapter_response": {"_message": "CREATE VIEW"}},
    {"unique_id": "test.shop.not_null_orders_order_id", "status": "pass", "adapter_response": {}}
  ],
  "elapsed_time": 1.25
}`

// SampleStdout is the structured log of a successful build of
// SampleManifest.
func SampleStdout() []string {
	return []string{
		LogLine("MainReportVersion", "Running with dbt=1.8.0"),
		NodeFinishedLine("model.shop.customers", "customers", "success", "model"),
		NodeFinishedLine("model.shop.orders", "orders", "success", "model"),
		NodeFinishedLine("test.shop.not_null_orders_order_id", "not_null_orders_order_id", "pass", "test"),
		LogLine("CommandCompleted", "Completed successfully"),
	}
}
