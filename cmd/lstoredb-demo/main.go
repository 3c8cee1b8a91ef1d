// Démonstration du moteur lstoredb : insert, historique de versions,
// somme par intervalle, index secondaire et suppression. La base n'est pas
// rouverte : la durabilité n'est pas démontrée ici.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Felmond13/lstoredb/lstoredb"
	"github.com/Felmond13/lstoredb/table"
)

func projection(n int) []int {
	p := make([]int, n)
	for i := range p {
		p[i] = 1
	}
	return p
}

func main() {
	const dbPath = "grades.lstoredb"
	defer os.RemoveAll(dbPath)

	db, err := lstoredb.Open(dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Println("=== lstoredb — exemple d'utilisation ===")

	grades, err := db.CreateTable("grades", 5, 0)
	if err != nil {
		log.Fatalf("create_table: %v", err)
	}

	fmt.Println("--- insert ---")
	for pk := int64(1); pk <= 6; pk++ {
		values := []int64{pk, 90, 91, 92, 93}
		if _, err := grades.Insert(values); err != nil {
			log.Fatalf("insert: %v", err)
		}
	}

	fmt.Println("--- update (trois révisions de la clé 1) ---")
	for _, score := range []int64{95, 97, 99} {
		mask := []table.ColumnUpdate{
			table.Keep,
			{Set: true, Value: score},
			table.Keep, table.Keep, table.Keep,
		}
		if err := grades.Update(1, mask); err != nil {
			log.Fatalf("update: %v", err)
		}
	}

	fmt.Println("--- select_version sur la clé 1 ---")
	for _, v := range []int{0, -1, -2, -3} {
		res, err := grades.SelectVersion(1, 0, projection(5), v)
		if err != nil {
			log.Fatalf("select_version: %v", err)
		}
		fmt.Printf("  version %d: %+v\n", v, res)
	}

	fmt.Println("--- sum sur l'intervalle [2, 5] ---")
	total, err := grades.Sum(2, 5, 1)
	if err != nil {
		log.Fatalf("sum: %v", err)
	}
	fmt.Printf("  somme colonne 1: %d\n", total)

	fmt.Println("--- index secondaire sur la colonne 2 ---")
	if err := grades.CreateIndex(2); err != nil {
		log.Fatalf("create_index: %v", err)
	}
	res, err := grades.Select(91, 2, projection(5))
	if err != nil {
		log.Fatalf("select via index: %v", err)
	}
	fmt.Printf("  %d correspondances\n", len(res))

	fmt.Println("--- delete de la clé 6 ---")
	if err := grades.Delete(6); err != nil {
		log.Fatalf("delete: %v", err)
	}
	res, err = grades.Select(6, 0, projection(5))
	if err != nil {
		log.Fatalf("select after delete: %v", err)
	}
	fmt.Printf("  résultats après suppression: %d\n", len(res))

	fmt.Println("=== terminé ===")
}
