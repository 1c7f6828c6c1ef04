package migrations

import (
	"encoding/json"

	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

// resale_listings, resale_transfers and review_flags travel together since the
// transfer flow writes all three.
func init() {
	m.Register(func(app core.App) error {
		collections := []string{
			`{
				"id": "lst4p83dkvt9qh1",
				"name": "resale_listings",
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
						"id": "text3362375939",
						"max": 0,
						"min": 0,
						"name": "ticket_id",
						"pattern": "",
						"presentable": false,
						"primaryKey": false,
						"required": true,
						"system": false,
						"type": "text"
					},
					{
						"hidden": false,
						"id": "text2167231649",
						"max": 0,
						"min": 0,
						"name": "seller_id",
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
						"id": "text2392944706",
						"max": 0,
						"min": 0,
						"name": "price",
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
							"active",
							"consumed",
							"withdrawn"
						]
					},
					{
						"hidden": false,
						"id": "date3138127540",
						"max": "",
						"min": "",
						"name": "listed_at",
						"presentable": false,
						"required": true,
						"system": false,
						"type": "date"
					}
				],
				"indexes": [
					"CREATE INDEX ` + "`" + `idx_listings_status` + "`" + ` ON ` + "`" + `resale_listings` + "`" + ` (` + "`" + `status` + "`" + `)",
					"CREATE INDEX ` + "`" + `idx_listings_ticket` + "`" + ` ON ` + "`" + `resale_listings` + "`" + ` (` + "`" + `ticket_id` + "`" + `)"
				],
				"listRule": null,
				"viewRule": null,
				"createRule": null,
				"updateRule": null,
				"deleteRule": null
			}`,
			`{
				"id": "trf6w27gahx5mn3",
				"name": "resale_transfers",
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
						"id": "text1912072591",
						"max": 0,
						"min": 0,
						"name": "listing_id",
						"pattern": "",
						"presentable": false,
						"primaryKey": false,
						"required": true,
						"system": false,
						"type": "text"
					},
					{
						"hidden": false,
						"id": "text3122568430",
						"max": 0,
						"min": 0,
						"name": "old_ticket_id",
						"pattern": "",
						"presentable": false,
						"primaryKey": false,
						"required": true,
						"system": false,
						"type": "text"
					},
					{
						"hidden": false,
						"id": "text2460291443",
						"max": 0,
						"min": 0,
						"name": "new_ticket_id",
						"pattern": "",
						"presentable": false,
						"primaryKey": false,
						"required": true,
						"system": false,
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
						"id": "date2482542719",
						"max": "",
						"min": "",
						"name": "transferred_at",
						"presentable": false,
						"required": true,
						"system": false,
						"type": "date"
					}
				],
				"indexes": [
					"CREATE UNIQUE INDEX ` + "`" + `idx_transfers_listing` + "`" + ` ON ` + "`" + `resale_transfers` + "`" + ` (` + "`" + `listing_id` + "`" + `)"
				],
				"listRule": null,
				"viewRule": null,
				"createRule": null,
				"updateRule": null,
				"deleteRule": null
			}`,
			`{
				"id": "rvw9k34fbsu8pc2",
				"name": "review_flags",
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
						"id": "select3526408902",
						"maxSelect": 1,
						"name": "kind",
						"presentable": false,
						"required": true,
						"system": false,
						"type": "select",
						"values": [
							"fulfillment_retry",
							"refund_required"
						]
					},
					{
						"hidden": false,
						"id": "text2168550802",
						"max": 0,
						"min": 0,
						"name": "ref_id",
						"pattern": "",
						"presentable": false,
						"primaryKey": false,
						"required": true,
						"system": false,
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
						"required": false,
						"system": false,
						"type": "text"
					},
					{
						"hidden": false,
						"id": "text737455932",
						"max": 0,
						"min": 0,
						"name": "note",
						"pattern": "",
						"presentable": false,
						"primaryKey": false,
						"required": false,
						"system": false,
						"type": "text"
					},
					{
						"hidden": false,
						"id": "date1706091181",
						"max": "",
						"min": "",
						"name": "flagged_at",
						"presentable": false,
						"required": true,
						"system": false,
						"type": "date"
					}
				],
				"indexes": [
					"CREATE INDEX ` + "`" + `idx_review_flags_kind` + "`" + ` ON ` + "`" + `review_flags` + "`" + ` (` + "`" + `kind` + "`" + `)"
				],
				"listRule": null,
				"viewRule": null,
				"createRule": null,
				"updateRule": null,
				"deleteRule": null
			}`,
		}

		for _, jsonData := range collections {
			collection := &core.Collection{}
			if err := json.Unmarshal([]byte(jsonData), &collection); err != nil {
				return err
			}
			if err := app.Save(collection); err != nil {
				return err
			}
		}

		return nil
	}, func(app core.App) error {
		for _, id := range []string{"rvw9k34fbsu8pc2", "trf6w27gahx5mn3", "lst4p83dkvt9qh1"} {
			collection, err := app.FindCollectionByNameOrId(id)
			if err != nil {
				return err
			}
			if err := app.Delete(collection); err != nil {
				return err
			}
		}

		return nil
	})
}
