package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		jsonData := `{
			"id": "pur7c41bmnq2ze5",
			"name": "purchases",
			"type": "base",
			"system": false,
			"fields": [
				{
					"hidden": false,
					"id": "text3208210256",
					"max": 40,
					"min": 15,
					"name": "id",
					"pattern": "^[a-z0-9-]+$",
					"presentable": false,
					"primaryKey": true,
					"required": true,
					"system": true,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "text2809058197",
					"max": 0,
					"min": 0,
					"name": "buyer_id",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": true,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "text3253625724",
					"max": 0,
					"min": 0,
					"name": "event_id",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": true,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "text1326724116",
					"max": 0,
					"min": 0,
					"name": "ticket_type_id",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": true,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "number3402113753",
					"max": null,
					"min": 1,
					"name": "quantity",
					"onlyInt": true,
					"presentable": false,
					"required": true,
					"system": false,
					"type": "number"
				},
				{
					"hidden": false,
					"id": "text2392944706",
					"max": 0,
					"min": 0,
					"name": "unit_price",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": true,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "text1097918072",
					"max": 0,
					"min": 0,
					"name": "total_amount",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": true,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "select2063623452",
					"maxSelect": 1,
					"name": "status",
					"presentable": false,
					"required": true,
					"system": false,
					"type": "select",
					"values": [
						"pending",
						"completed",
						"failed",
						"cancelled"
					]
				},
				{
					"hidden": false,
					"id": "text3965241664",
					"max": 0,
					"min": 0,
					"name": "provider_ref",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": false,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "text2245178097",
					"max": 0,
					"min": 0,
					"name": "fail_reason",
					"pattern": "",
					"presentable": false,
					"primaryKey": false,
					"required": false,
					"system": false,
					"type": "text"
				},
				{
					"hidden": false,
					"id": "bool1122966548",
					"name": "needs_review",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "bool"
				},
				{
					"hidden": false,
					"id": "date3312842702",
					"max": "",
					"min": "",
					"name": "purchased_at",
					"presentable": false,
					"required": true,
					"system": false,
					"type": "date"
				},
				{
					"hidden": false,
					"id": "date1542800728",
					"max": "",
					"min": "",
					"name": "transitioned_at",
					"presentable": false,
					"required": false,
					"system": false,
					"type": "date"
				}
			],
			"indexes": [
				"CREATE INDEX ` + "`" + `idx_purchases_buyer` + "`" + ` ON ` + "`" + `purchases` + "`" + ` (` + "`" + `buyer_id` + "`" + `)",
				"CREATE INDEX ` + "`" + `idx_purchases_status` + "`" + ` ON ` + "`" + `purchases` + "`" + ` (` + "`" + `status` + "`" + `)",
				"CREATE INDEX ` + "`" + `idx_purchases_provider_ref` + "`" + ` ON ` + "`" + `purchases` + "`" + ` (` + "`" + `provider_ref` + "`" + `)"
			],
			"listRule": null,
			"viewRule": null,
			"createRule": null,
			"updateRule": null,
			"deleteRule": null
		}`

		collection := &core.Collection{}
		if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
			return err
		}

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("pur7c41bmnq2ze5")
		if err != nil {
			return err
		}

		return app.Delete(collection)
	})
}
